package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/micro-nova/laserguard/internal/credentials"
	"github.com/micro-nova/laserguard/internal/models"
	"github.com/micro-nova/laserguard/internal/radio"
	"github.com/micro-nova/laserguard/internal/wifi"
)

// forgetReconnectRetries is the retry budget of the reconnect that follows
// forgetting the network the device is on.
const forgetReconnectRetries = 5

type accessPointsData struct {
	AccessPoints []radio.AccessPointInfo `json:"access_points"`
}

func (h *Handlers) scanAccessPoints(w http.ResponseWriter, r *http.Request) {
	if !h.ScanLimiter.Allow() {
		writeError(w, models.ErrTooManyRequests("scan already requested, try again shortly"))
		return
	}
	var aps []radio.AccessPointInfo
	err := h.Wifi.With(func(wf *wifi.Wifi) error {
		var err error
		aps, err = wf.ScanAccessPoints(r.Context())
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if aps == nil {
		aps = []radio.AccessPointInfo{}
	}
	writeData(w, accessPointsData{AccessPoints: aps})
}

// savedCredential is a stored credential without its secret.
type savedCredential struct {
	SSID    string            `json:"ssid"`
	BSSID   credentials.BSSID `json:"bssid"`
	Secured bool              `json:"secured"`
}

func (h *Handlers) getSavedCredentials(w http.ResponseWriter, r *http.Request) {
	var saved []credentials.Credential
	_ = h.Wifi.With(func(wf *wifi.Wifi) error {
		saved = wf.SavedCredentials()
		return nil
	})
	out := make([]savedCredential, 0, len(saved))
	for _, c := range saved {
		out = append(out, savedCredential{SSID: c.SSID, BSSID: c.BSSID, Secured: c.PSK != ""})
	}
	writeData(w, out)
}

// forgetCredential removes saved credentials. If the device is on the
// forgotten network it then tries the remaining ones and falls back to pair
// mode when none works.
func (h *Handlers) forgetCredential(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ssid := q.Get("ssid")
	if ssid == "" {
		writeError(w, models.ErrBadRequest("ssid is required"))
		return
	}
	var bssid *credentials.BSSID
	if s := q.Get("bssid"); s != "" {
		b, err := credentials.ParseBSSID(s)
		if err != nil {
			writeError(w, models.ErrBadRequest(err.Error()))
			return
		}
		bssid = &b
	}

	err := h.Wifi.With(func(wf *wifi.Wifi) error {
		return wf.ForgetAP(ssid, bssid)
	})
	h.Wifi.Go("reconnect after forget", h.ForgetDelay, func(wf *wifi.Wifi) error {
		return h.leaveForgottenNetwork(context.Background(), wf, ssid, bssid)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Successfully deleted access point credential")
}

func (h *Handlers) leaveForgottenNetwork(ctx context.Context, wf *wifi.Wifi, ssid string, bssid *credentials.BSSID) error {
	connected, err := wf.IsConnected()
	if err != nil || !connected {
		return err
	}
	ap, err := wf.STAAPInfo()
	if err != nil {
		return err
	}
	if ap.SSID != ssid || (bssid != nil && credentials.BSSID(ap.BSSID) != *bssid) {
		return nil
	}

	ok, err := wf.Reconnect(ctx, forgetReconnectRetries)
	if err == nil && ok {
		return nil
	}
	if err != nil {
		slog.Warn("api: reconnect after forget failed", "ssid", ssid, "err", err)
	}
	if err := wf.Disconnect(ctx); err != nil {
		return err
	}
	if err := h.Device.SetMode(models.ModePair); err != nil {
		return err
	}
	return wf.StartAPDefault(ctx)
}

type connectRequest struct {
	SSID    string             `json:"ssid"`
	PSK     string             `json:"psk"`
	BSSID   *credentials.BSSID `json:"bssid,omitempty"`
	Retries *uint8             `json:"retries,omitempty"`
}

// connect joins a network and saves its credential. When the provisioning
// access point is up, the radio drops it a few seconds after a successful
// join; on failure it stays up so the client can retry.
func (h *Handlers) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SSID == "" {
		writeError(w, models.ErrBadRequest("ssid is required"))
		return
	}
	var retries uint8
	if req.Retries != nil {
		retries = *req.Retries
	}

	var apEnabled bool
	err := h.Wifi.With(func(wf *wifi.Wifi) error {
		if err := wf.Connect(r.Context(), req.SSID, req.PSK, nil, nil, retries); err != nil {
			return err
		}
		var bssid credentials.BSSID
		if req.BSSID != nil {
			bssid = *req.BSSID
		} else {
			ap, err := wf.STAAPInfo()
			if err != nil {
				return err
			}
			bssid = credentials.BSSID(ap.BSSID)
		}
		if err := h.Device.SetMode(models.ModeConnected); err != nil {
			return err
		}
		if err := wf.SaveAPCredential(req.SSID, req.PSK, bssid); err != nil {
			return err
		}
		enabled, err := wf.IsAPEnabled()
		if err != nil {
			slog.Warn("api: could not read ap state", "err", err)
			return nil
		}
		apEnabled = enabled
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if apEnabled {
		h.Wifi.Go("switch to sta only", h.SwitchDelay, func(wf *wifi.Wifi) error {
			_, err := wf.SwitchToSTAOnly(context.Background())
			return err
		})
	}
	writeMessage(w, "Successfully connected to access point")
}

func (h *Handlers) wifiStatus(w http.ResponseWriter, r *http.Request) {
	var st wifi.Status
	err := h.Wifi.With(func(wf *wifi.Wifi) error {
		var err error
		st, err = wf.Status()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, st)
}
