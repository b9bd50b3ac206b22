package radio

import (
	"context"
	"net/netip"
	"sync"
	"time"
)

// ConnectAttempt records one call to Mock.Connect.
type ConnectAttempt struct {
	At   time.Time
	SSID string
	PSK  string
	Err  error
}

// Mock is a thread-safe in-memory radio for testing and development.
type Mock struct {
	mu          sync.Mutex
	started     bool
	cfg         Configuration
	connected   bool
	associated  AccessPointInfo
	scanResults []AccessPointInfo
	connectErrs []error
	connectErr  error
	failStart   bool
	failScan    bool
	netifErr    error
	attempts    []ConnectAttempt
	calls       []string
	scans       int
}

// NewMock creates a stopped, unconfigured mock radio.
func NewMock() *Mock {
	return &Mock{}
}

// SetScanResults configures what Scan returns.
func (m *Mock) SetScanResults(aps []AccessPointInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanResults = append([]AccessPointInfo(nil), aps...)
}

// SetConnectError makes every Connect fail with err (nil restores success).
func (m *Mock) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// QueueConnectResults sets the outcomes of the next Connect calls, in order.
// Once the queue is drained the SetConnectError value applies.
func (m *Mock) QueueConnectResults(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErrs = append(m.connectErrs, errs...)
}

// SetFailStart configures the mock to fail Start.
func (m *Mock) SetFailStart(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStart = fail
}

// SetFailScan configures the mock to fail Scan.
func (m *Mock) SetFailScan(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failScan = fail
}

// SetNetifError makes WaitNetifUp fail with err.
func (m *Mock) SetNetifError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.netifErr = err
}

// ConnectAttempts returns every Connect call made so far.
func (m *Mock) ConnectAttempts() []ConnectAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConnectAttempt(nil), m.attempts...)
}

// Calls returns the names of the state-changing calls made so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Scans returns how many scans were performed.
func (m *Mock) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "start")
	if m.failStart {
		return driverErr("start", errMock("start failure configured"))
	}
	m.started = true
	return nil
}

func (m *Mock) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "stop")
	m.started = false
	m.connected = false
	return nil
}

func (m *Mock) IsStarted() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, nil
}

func (m *Mock) Configuration() (Configuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone(), nil
}

func (m *Mock) SetConfiguration(cfg Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "set_configuration:"+cfg.Mode().String())
	if cfg.Client == nil {
		m.connected = false
	}
	m.cfg = cfg.Clone()
	return nil
}

func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "connect")

	attempt := ConnectAttempt{At: time.Now()}
	if m.cfg.Client != nil {
		attempt.SSID = m.cfg.Client.SSID
		attempt.PSK = m.cfg.Client.Password
	}

	var err error
	switch {
	case !m.started:
		err = driverErr("connect", ErrNotStarted)
	case m.cfg.Client == nil:
		err = driverErr("connect", ErrNoClientConfig)
	case len(m.connectErrs) > 0:
		err = m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
	default:
		err = m.connectErr
	}
	attempt.Err = err
	m.attempts = append(m.attempts, attempt)

	if err != nil {
		m.connected = false
		return err
	}
	m.connected = true
	m.associated = m.matchAssociated(*m.cfg.Client)
	return nil
}

// matchAssociated finds the scan result for the configured network, or
// synthesizes one when the test did not set any.
func (m *Mock) matchAssociated(c ClientConfig) AccessPointInfo {
	for _, ap := range m.scanResults {
		if ap.SSID == c.SSID && (c.BSSID == nil || *c.BSSID == ap.BSSID) {
			return ap
		}
	}
	info := AccessPointInfo{SSID: c.SSID, Auth: c.Auth, SignalStrength: -50}
	if c.BSSID != nil {
		info.BSSID = *c.BSSID
	}
	if c.Channel != nil {
		info.Channel = *c.Channel
	}
	return info
}

func (m *Mock) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "disconnect")
	m.connected = false
	return nil
}

func (m *Mock) IsConnected() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected, nil
}

func (m *Mock) Scan(ctx context.Context) ([]AccessPointInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "scan")
	if !m.started {
		return nil, driverErr("scan", ErrNotStarted)
	}
	if m.cfg.Client == nil {
		return nil, driverErr("scan", ErrNoClientConfig)
	}
	if m.failScan {
		return nil, driverErr("scan", errMock("scan failure configured"))
	}
	m.scans++
	return append([]AccessPointInfo(nil), m.scanResults...), nil
}

func (m *Mock) WaitNetifUp(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.netifErr != nil {
		return m.netifErr
	}
	if !m.connected {
		return driverErr("wait_netif_up", ErrNotConnected)
	}
	return nil
}

func (m *Mock) APInfo() (AccessPointInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return AccessPointInfo{}, driverErr("ap_info", ErrNotConnected)
	}
	return m.associated, nil
}

func (m *Mock) IPInfo(iface Interface) (IPInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case iface == InterfaceAP && m.cfg.AccessPoint != nil && m.started:
		return IPInfo{
			Address: netip.MustParsePrefix("192.168.71.1/24"),
			Gateway: netip.MustParseAddr("192.168.71.1"),
		}, nil
	case iface == InterfaceSTA && m.connected:
		return IPInfo{
			Address: netip.MustParsePrefix("10.0.0.42/24"),
			Gateway: netip.MustParseAddr("10.0.0.1"),
			DNS:     []netip.Addr{netip.MustParseAddr("10.0.0.1")},
		}, nil
	}
	return IPInfo{}, driverErr("ip_info", ErrNotConnected)
}

type mockError string

func (e mockError) Error() string { return "mock: " + string(e) }

func errMock(msg string) error { return mockError(msg) }

// Ensure Mock implements Driver
var _ Driver = (*Mock)(nil)
