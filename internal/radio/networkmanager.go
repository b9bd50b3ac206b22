package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	nmDest          = "org.freedesktop.NetworkManager"
	nmPath          = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface         = "org.freedesktop.NetworkManager"
	nmDeviceIface   = "org.freedesktop.NetworkManager.Device"
	nmWirelessIface = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAPIface       = "org.freedesktop.NetworkManager.AccessPoint"
	nmIP4Iface      = "org.freedesktop.NetworkManager.IP4Config"
	nmConnIface     = "org.freedesktop.NetworkManager.Settings.Connection"

	// NMDeviceState values, see NetworkManager's nm-dbus-interface.h.
	nmStateDisconnected = 30
	nmStateIPConfig     = 70
	nmStateActivated    = 100
	nmStateFailed       = 120

	nmPollInterval = 250 * time.Millisecond
	nmScanSettle   = 3 * time.Second
	nmApplyTimeout = 30 * time.Second

	apConnectionID = "laserguard-ap"
)

// nmSettings is the a{sa{sv}} connection settings dictionary.
type nmSettings map[string]map[string]dbus.Variant

// NetworkManager drives a Wi-Fi interface through NetworkManager over the
// system D-Bus. The station side runs on staIface; the access point side runs
// on apIface, which should be a separate virtual interface (e.g. uap0) for
// Mixed mode to keep both links up.
type NetworkManager struct {
	mu       sync.Mutex
	conn     *dbus.Conn
	staIface string
	apIface  string
	staDev   dbus.ObjectPath
	apDev    dbus.ObjectPath
	cfg      Configuration

	// Profiles this driver created, removed again before being replaced.
	clientProfile dbus.ObjectPath
	apProfile     dbus.ObjectPath
	apActive      dbus.ObjectPath
}

// NewNetworkManager creates a driver for the given interfaces. An empty
// apIface places the access point on the station interface.
func NewNetworkManager(staIface, apIface string) *NetworkManager {
	if apIface == "" {
		apIface = staIface
	}
	return &NetworkManager{staIface: staIface, apIface: apIface}
}

// Init connects to the system bus and resolves the device objects.
func (n *NetworkManager) Init(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return driverErr("init", fmt.Errorf("connect system bus: %w", err))
	}
	n.conn = conn

	nm := conn.Object(nmDest, nmPath)
	if err := nm.CallWithContext(ctx, nmIface+".GetDeviceByIpIface", 0, n.staIface).Store(&n.staDev); err != nil {
		conn.Close()
		return driverErr("init", fmt.Errorf("device %s: %w", n.staIface, err))
	}
	if n.apIface == n.staIface {
		n.apDev = n.staDev
	} else if err := nm.CallWithContext(ctx, nmIface+".GetDeviceByIpIface", 0, n.apIface).Store(&n.apDev); err != nil {
		slog.Warn("radio: access point interface not found, sharing station interface",
			"ap_iface", n.apIface, "err", err)
		n.apIface = n.staIface
		n.apDev = n.staDev
	}
	slog.Info("radio: NetworkManager driver ready", "sta", n.staIface, "ap", n.apIface)
	return nil
}

// Close releases the bus connection.
func (n *NetworkManager) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

func (n *NetworkManager) nm() dbus.BusObject { return n.conn.Object(nmDest, nmPath) }

func (n *NetworkManager) obj(path dbus.ObjectPath) dbus.BusObject { return n.conn.Object(nmDest, path) }

func (n *NetworkManager) ready() error {
	if n.conn == nil {
		return errors.New("driver not initialized")
	}
	return nil
}

func (n *NetworkManager) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return driverErr("start", err)
	}
	if err := n.nm().SetProperty(nmIface+".WirelessEnabled", dbus.MakeVariant(true)); err != nil {
		return driverErr("start", err)
	}
	return driverErr("start", n.applyAccessPoint(ctx))
}

func (n *NetworkManager) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return driverErr("stop", err)
	}
	n.apActive = ""
	return driverErr("stop", n.nm().SetProperty(nmIface+".WirelessEnabled", dbus.MakeVariant(false)))
}

func (n *NetworkManager) IsStarted() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return false, driverErr("is_started", err)
	}
	v, err := n.nm().GetProperty(nmIface + ".WirelessEnabled")
	if err != nil {
		return false, driverErr("is_started", err)
	}
	enabled, _ := v.Value().(bool)
	return enabled, nil
}

func (n *NetworkManager) Configuration() (Configuration, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg.Clone(), nil
}

// SetConfiguration installs cfg. On a running radio a changed access point
// side is applied right away; the client side is applied by Connect.
func (n *NetworkManager) SetConfiguration(cfg Configuration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cfg.Mode() == ModeMixed && n.apIface == n.staIface {
		slog.Warn("radio: mixed mode on a single interface, client link is suspended while the access point is up",
			"iface", n.staIface)
	}
	changed := !apEqual(n.cfg.AccessPoint, cfg.AccessPoint)
	n.cfg = cfg.Clone()
	if !changed || n.conn == nil {
		return nil
	}
	v, err := n.nm().GetProperty(nmIface + ".WirelessEnabled")
	if err != nil {
		return driverErr("set_configuration", err)
	}
	if enabled, _ := v.Value().(bool); !enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), nmApplyTimeout)
	defer cancel()
	return driverErr("set_configuration", n.applyAccessPoint(ctx))
}

func apEqual(a, b *APConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	if (a.SecondaryChannel == nil) != (b.SecondaryChannel == nil) {
		return false
	}
	if a.SecondaryChannel != nil && *a.SecondaryChannel != *b.SecondaryChannel {
		return false
	}
	x, y := *a, *b
	x.SecondaryChannel, y.SecondaryChannel = nil, nil
	return x == y
}

// applyAccessPoint brings the hotspot profile up or down to match n.cfg.
func (n *NetworkManager) applyAccessPoint(ctx context.Context) error {
	if n.cfg.AccessPoint == nil {
		if n.apActive != "" {
			if err := n.nm().CallWithContext(ctx, nmIface+".DeactivateConnection", 0, n.apActive).Err; err != nil {
				slog.Debug("radio: deactivate access point", "err", err)
			}
			n.apActive = ""
		}
		n.deleteProfile(ctx, &n.apProfile)
		return nil
	}

	n.deleteProfile(ctx, &n.apProfile)
	settings := apSettings(*n.cfg.AccessPoint, n.apIface)
	var profile, active dbus.ObjectPath
	err := n.nm().CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0,
		settings, n.apDev, dbus.ObjectPath("/")).Store(&profile, &active)
	if err != nil {
		return fmt.Errorf("activate access point: %w", err)
	}
	n.apProfile = profile
	n.apActive = active
	return nil
}

func (n *NetworkManager) deleteProfile(ctx context.Context, path *dbus.ObjectPath) {
	if *path == "" {
		return
	}
	if err := n.obj(*path).CallWithContext(ctx, nmConnIface+".Delete", 0).Err; err != nil {
		slog.Debug("radio: delete connection profile", "path", *path, "err", err)
	}
	*path = ""
}

func (n *NetworkManager) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return driverErr("connect", err)
	}
	if n.cfg.Client == nil {
		return driverErr("connect", ErrNoClientConfig)
	}

	n.deleteProfile(ctx, &n.clientProfile)
	var profile, active dbus.ObjectPath
	err := n.nm().CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0,
		clientSettings(*n.cfg.Client, n.staIface), n.staDev, dbus.ObjectPath("/")).Store(&profile, &active)
	if err != nil {
		return driverErr("connect", err)
	}
	n.clientProfile = profile

	// Association is done once the device moves on to IP configuration.
	_, err = n.waitDeviceState(ctx, n.staDev, nmStateIPConfig)
	return driverErr("connect", err)
}

func (n *NetworkManager) Disconnect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return driverErr("disconnect", err)
	}
	return driverErr("disconnect", n.obj(n.staDev).CallWithContext(ctx, nmDeviceIface+".Disconnect", 0).Err)
}

// waitDeviceState polls the device until its state reaches at least want.
func (n *NetworkManager) waitDeviceState(ctx context.Context, dev dbus.ObjectPath, want uint32) (uint32, error) {
	ticker := time.NewTicker(nmPollInterval)
	defer ticker.Stop()
	for {
		st, err := n.deviceState(dev)
		if err != nil {
			return 0, err
		}
		switch {
		case st == nmStateFailed:
			return st, errors.New("activation failed")
		case st >= want && st <= nmStateActivated:
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *NetworkManager) deviceState(dev dbus.ObjectPath) (uint32, error) {
	v, err := n.obj(dev).GetProperty(nmDeviceIface + ".State")
	if err != nil {
		return 0, err
	}
	st, _ := v.Value().(uint32)
	return st, nil
}

func (n *NetworkManager) IsConnected() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return false, driverErr("is_connected", err)
	}
	st, err := n.deviceState(n.staDev)
	if err != nil {
		return false, driverErr("is_connected", err)
	}
	if st != nmStateActivated || n.apIface != n.staIface {
		return st == nmStateActivated, nil
	}

	// The hotspot activates the same device, so look at what is active on it.
	dev := n.obj(n.staDev)
	conn, err := dev.GetProperty(nmDeviceIface + ".ActiveConnection")
	if err != nil {
		return false, driverErr("is_connected", err)
	}
	ap, err := dev.GetProperty(nmWirelessIface + ".ActiveAccessPoint")
	if err != nil {
		return false, driverErr("is_connected", err)
	}
	activeConn, _ := conn.Value().(dbus.ObjectPath)
	activeAP, _ := ap.Value().(dbus.ObjectPath)
	return stationLinked(st, true, activeConn, n.apActive, activeAP), nil
}

// stationLinked reports whether a station device in state st has a client
// link. When the hotspot shares the device, an activated state only counts if
// the active connection is not the hotspot and an access point is joined.
func stationLinked(st uint32, shared bool, activeConn, apActive, activeAP dbus.ObjectPath) bool {
	if st != nmStateActivated {
		return false
	}
	if !shared {
		return true
	}
	if apActive != "" && activeConn == apActive {
		return false
	}
	return activeAP != "" && activeAP != "/"
}

func (n *NetworkManager) Scan(ctx context.Context) ([]AccessPointInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return nil, driverErr("scan", err)
	}
	if n.cfg.Client == nil {
		return nil, driverErr("scan", ErrNoClientConfig)
	}

	dev := n.obj(n.staDev)
	before := n.lastScan(dev)
	if err := dev.CallWithContext(ctx, nmWirelessIface+".RequestScan", 0, map[string]dbus.Variant{}).Err; err != nil {
		// NetworkManager rejects scans requested too close together; the
		// cached list is still useful.
		slog.Debug("radio: scan request rejected, using cached results", "err", err)
	} else {
		deadline := time.NewTimer(nmScanSettle)
		defer deadline.Stop()
		ticker := time.NewTicker(nmPollInterval)
		defer ticker.Stop()
	wait:
		for n.lastScan(dev) == before {
			select {
			case <-ctx.Done():
				return nil, driverErr("scan", ctx.Err())
			case <-deadline.C:
				break wait
			case <-ticker.C:
			}
		}
	}

	var paths []dbus.ObjectPath
	if err := dev.CallWithContext(ctx, nmWirelessIface+".GetAllAccessPoints", 0).Store(&paths); err != nil {
		return nil, driverErr("scan", err)
	}
	aps := make([]AccessPointInfo, 0, len(paths))
	for _, p := range paths {
		info, err := n.accessPoint(p)
		if err != nil {
			slog.Debug("radio: skipping access point", "path", p, "err", err)
			continue
		}
		aps = append(aps, info)
	}
	return aps, nil
}

func (n *NetworkManager) lastScan(dev dbus.BusObject) int64 {
	v, err := dev.GetProperty(nmWirelessIface + ".LastScan")
	if err != nil {
		return 0
	}
	ts, _ := v.Value().(int64)
	return ts
}

func (n *NetworkManager) accessPoint(path dbus.ObjectPath) (AccessPointInfo, error) {
	var props map[string]dbus.Variant
	err := n.obj(path).Call("org.freedesktop.DBus.Properties.GetAll", 0, nmAPIface).Store(&props)
	if err != nil {
		return AccessPointInfo{}, err
	}
	var info AccessPointInfo
	if ssid, ok := props["Ssid"].Value().([]byte); ok {
		info.SSID = string(ssid)
	}
	if hw, ok := props["HwAddress"].Value().(string); ok {
		if mac, err := net.ParseMAC(hw); err == nil && len(mac) == len(info.BSSID) {
			copy(info.BSSID[:], mac)
		}
	}
	if strength, ok := props["Strength"].Value().(byte); ok {
		info.SignalStrength = percentToDBm(strength)
	}
	if freq, ok := props["Frequency"].Value().(uint32); ok {
		info.Channel = frequencyToChannel(freq)
	}
	flags, _ := props["Flags"].Value().(uint32)
	wpa, _ := props["WpaFlags"].Value().(uint32)
	rsn, _ := props["RsnFlags"].Value().(uint32)
	info.Auth = authFromFlags(flags, wpa, rsn)
	return info, nil
}

func (n *NetworkManager) WaitNetifUp(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return driverErr("wait_netif_up", err)
	}
	_, err := n.waitDeviceState(ctx, n.staDev, nmStateActivated)
	return driverErr("wait_netif_up", err)
}

func (n *NetworkManager) APInfo() (AccessPointInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return AccessPointInfo{}, driverErr("ap_info", err)
	}
	v, err := n.obj(n.staDev).GetProperty(nmWirelessIface + ".ActiveAccessPoint")
	if err != nil {
		return AccessPointInfo{}, driverErr("ap_info", err)
	}
	path, _ := v.Value().(dbus.ObjectPath)
	if path == "" || path == "/" {
		return AccessPointInfo{}, driverErr("ap_info", ErrNotConnected)
	}
	info, err := n.accessPoint(path)
	return info, driverErr("ap_info", err)
}

func (n *NetworkManager) IPInfo(iface Interface) (IPInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ready(); err != nil {
		return IPInfo{}, driverErr("ip_info", err)
	}
	dev := n.staDev
	if iface == InterfaceAP {
		dev = n.apDev
	}
	v, err := n.obj(dev).GetProperty(nmDeviceIface + ".Ip4Config")
	if err != nil {
		return IPInfo{}, driverErr("ip_info", err)
	}
	cfgPath, _ := v.Value().(dbus.ObjectPath)
	if cfgPath == "" || cfgPath == "/" {
		return IPInfo{}, driverErr("ip_info", ErrNotConnected)
	}
	info, err := n.ip4Config(cfgPath)
	return info, driverErr("ip_info", err)
}

func (n *NetworkManager) ip4Config(path dbus.ObjectPath) (IPInfo, error) {
	var props map[string]dbus.Variant
	if err := n.obj(path).Call("org.freedesktop.DBus.Properties.GetAll", 0, nmIP4Iface).Store(&props); err != nil {
		return IPInfo{}, err
	}
	var info IPInfo
	if addrs, ok := props["AddressData"].Value().([]map[string]dbus.Variant); ok && len(addrs) > 0 {
		addr, _ := addrs[0]["address"].Value().(string)
		prefix, _ := addrs[0]["prefix"].Value().(uint32)
		if a, err := netip.ParseAddr(addr); err == nil {
			info.Address = netip.PrefixFrom(a, int(prefix))
		}
	}
	if gw, ok := props["Gateway"].Value().(string); ok {
		info.Gateway, _ = netip.ParseAddr(gw)
	}
	if servers, ok := props["NameserverData"].Value().([]map[string]dbus.Variant); ok {
		for _, s := range servers {
			if a, err := netip.ParseAddr(fmt.Sprint(s["address"].Value())); err == nil {
				info.DNS = append(info.DNS, a)
			}
		}
	}
	return info, nil
}

func clientSettings(c ClientConfig, iface string) nmSettings {
	wireless := map[string]dbus.Variant{
		"ssid": dbus.MakeVariant([]byte(c.SSID)),
		"mode": dbus.MakeVariant("infrastructure"),
	}
	if c.BSSID != nil {
		wireless["bssid"] = dbus.MakeVariant(c.BSSID[:])
	}
	if c.Channel != nil {
		wireless["channel"] = dbus.MakeVariant(uint32(*c.Channel))
		wireless["band"] = dbus.MakeVariant(bandForChannel(*c.Channel))
	}
	s := nmSettings{
		"connection": {
			"type":           dbus.MakeVariant("802-11-wireless"),
			"id":             dbus.MakeVariant("laserguard-" + c.SSID),
			"interface-name": dbus.MakeVariant(iface),
			"autoconnect":    dbus.MakeVariant(true),
		},
		"802-11-wireless": wireless,
		"ipv4":            {"method": dbus.MakeVariant("auto")},
		"ipv6":            {"method": dbus.MakeVariant("auto")},
	}
	if c.Auth != AuthNone {
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(c.Password),
		}
	}
	return s
}

func apSettings(ap APConfig, iface string) nmSettings {
	s := nmSettings{
		"connection": {
			"type":           dbus.MakeVariant("802-11-wireless"),
			"id":             dbus.MakeVariant(apConnectionID),
			"interface-name": dbus.MakeVariant(iface),
			"autoconnect":    dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid":    dbus.MakeVariant([]byte(ap.SSID)),
			"mode":    dbus.MakeVariant("ap"),
			"band":    dbus.MakeVariant(bandForChannel(ap.Channel)),
			"channel": dbus.MakeVariant(uint32(ap.Channel)),
			"hidden":  dbus.MakeVariant(ap.Hidden),
		},
		"ipv4": {"method": dbus.MakeVariant("shared")},
		"ipv6": {"method": dbus.MakeVariant("ignore")},
	}
	if ap.Auth != AuthNone {
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(ap.Password),
		}
	}
	return s
}

func bandForChannel(ch uint8) string {
	if ch > 14 {
		return "a"
	}
	return "bg"
}

// percentToDBm maps NetworkManager's 0-100 quality onto an approximate RSSI.
func percentToDBm(p byte) int8 {
	if p > 100 {
		p = 100
	}
	return int8(int(p)/2 - 100)
}

func frequencyToChannel(mhz uint32) uint8 {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz < 2484:
		return uint8((mhz-2407)/5)
	case mhz >= 5000 && mhz <= 5900:
		return uint8((mhz - 5000) / 5)
	default:
		return 0
	}
}

// NM80211ApFlags / NM80211ApSecurityFlags bits.
const (
	apFlagPrivacy   = 0x1
	secKeyMgmtPSK   = 0x100
	secKeyMgmt8021X = 0x200
	secKeyMgmtSAE   = 0x400
)

func authFromFlags(flags, wpa, rsn uint32) AuthMethod {
	switch {
	case rsn&secKeyMgmtSAE != 0:
		return AuthWPA3Personal
	case (rsn|wpa)&secKeyMgmt8021X != 0:
		return AuthWPA2Enterprise
	case rsn&secKeyMgmtPSK != 0 && wpa&secKeyMgmtPSK != 0:
		return AuthWPAWPA2Personal
	case rsn&secKeyMgmtPSK != 0:
		return AuthWPA2Personal
	case wpa&secKeyMgmtPSK != 0:
		return AuthWPAPersonal
	case flags&apFlagPrivacy != 0:
		return AuthWEP
	default:
		return AuthNone
	}
}

// Ensure NetworkManager implements Driver
var _ Driver = (*NetworkManager)(nil)
