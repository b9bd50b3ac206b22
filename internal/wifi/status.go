package wifi

import (
	"github.com/micro-nova/laserguard/internal/credentials"
	"github.com/micro-nova/laserguard/internal/radio"
)

// SaveAPCredential stores the credential of a network the device joined.
func (w *Wifi) SaveAPCredential(ssid, psk string, bssid credentials.BSSID) error {
	return w.creds.SaveCredential(ssid, psk, bssid)
}

// ForgetAP removes saved credentials, see credentials.Service.Forget.
func (w *Wifi) ForgetAP(ssid string, bssid *credentials.BSSID) error {
	return w.creds.Forget(ssid, bssid)
}

// HasSavedCredentials reports whether any credential is stored.
func (w *Wifi) HasSavedCredentials() bool {
	return w.creds.Len() > 0
}

// SavedCredentials returns a snapshot of the stored credentials.
func (w *Wifi) SavedCredentials() []credentials.Credential {
	return w.creds.All()
}

func (w *Wifi) IsStarted() (bool, error) { return w.driver.IsStarted() }

func (w *Wifi) IsConnected() (bool, error) { return w.driver.IsConnected() }

// IsAPEnabled reports whether the access point side is configured.
func (w *Wifi) IsAPEnabled() (bool, error) {
	cfg, err := w.driver.Configuration()
	if err != nil {
		return false, err
	}
	return cfg.APEnabled(), nil
}

// IsSTAEnabled reports whether the client side is configured.
func (w *Wifi) IsSTAEnabled() (bool, error) {
	cfg, err := w.driver.Configuration()
	if err != nil {
		return false, err
	}
	return cfg.STAEnabled(), nil
}

// Mode returns the shape of the installed configuration.
func (w *Wifi) Mode() (radio.Mode, error) {
	cfg, err := w.driver.Configuration()
	if err != nil {
		return radio.ModeDisabled, err
	}
	return cfg.Mode(), nil
}

// STAAPInfo describes the access point the client side is associated with.
func (w *Wifi) STAAPInfo() (radio.AccessPointInfo, error) {
	return w.driver.APInfo()
}

func (w *Wifi) STAIPInfo() (radio.IPInfo, error) {
	return w.driver.IPInfo(radio.InterfaceSTA)
}

func (w *Wifi) APIPInfo() (radio.IPInfo, error) {
	return w.driver.IPInfo(radio.InterfaceAP)
}

// Status is a point-in-time summary of the radio.
type Status struct {
	Started     bool                   `json:"started"`
	Connected   bool                   `json:"connected"`
	Mode        radio.Mode             `json:"mode"`
	AccessPoint *radio.AccessPointInfo `json:"access_point,omitempty"`
	STAIP       *radio.IPInfo          `json:"sta_ip,omitempty"`
	APIP        *radio.IPInfo          `json:"ap_ip,omitempty"`
	Saved       int                    `json:"saved_credentials"`
}

// Status collects the radio state. Details that the driver cannot report in
// the current mode are left out.
func (w *Wifi) Status() (Status, error) {
	var s Status
	var err error
	if s.Started, err = w.driver.IsStarted(); err != nil {
		return s, err
	}
	if s.Connected, err = w.driver.IsConnected(); err != nil {
		return s, err
	}
	if s.Mode, err = w.Mode(); err != nil {
		return s, err
	}
	s.Saved = w.creds.Len()
	if s.Connected {
		if info, err := w.driver.APInfo(); err == nil {
			s.AccessPoint = &info
		}
		if ip, err := w.STAIPInfo(); err == nil {
			s.STAIP = &ip
		}
	}
	if s.Mode == radio.ModeAccessPoint || s.Mode == radio.ModeMixed {
		if ip, err := w.APIPInfo(); err == nil {
			s.APIP = &ip
		}
	}
	return s, nil
}
