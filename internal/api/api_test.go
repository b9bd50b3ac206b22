package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/micro-nova/laserguard/internal/api"
	"github.com/micro-nova/laserguard/internal/auth"
	"github.com/micro-nova/laserguard/internal/config"
	"github.com/micro-nova/laserguard/internal/credentials"
	"github.com/micro-nova/laserguard/internal/device"
	"github.com/micro-nova/laserguard/internal/events"
	"github.com/micro-nova/laserguard/internal/identity"
	"github.com/micro-nova/laserguard/internal/models"
	"github.com/micro-nova/laserguard/internal/radio"
	"github.com/micro-nova/laserguard/internal/state"
	"github.com/micro-nova/laserguard/internal/wifi"
)

var (
	bssidHome   = credentials.BSSID{0x02, 0, 0, 0, 0, 0x01}
	bssidOffice = credentials.BSSID{0x02, 0, 0, 0, 0, 0x02}
)

type testEnv struct {
	srv     *httptest.Server
	mock    *radio.Mock
	wifi    *wifi.Shared
	creds   *credentials.Service
	device  *device.Service
	confDir string
	bus     *events.Bus
	reboots chan struct{}
}

// newTestEnv spins up a full router over the mock radio. The radio starts
// in provisioning mode, with the default access point up.
func newTestEnv(t *testing.T, tweak ...func(*api.Deps)) *testEnv {
	t.Helper()
	env := &testEnv{
		mock:    radio.NewMock(),
		confDir: filepath.Join(t.TempDir(), "conf"),
		bus:     events.NewBus(),
		reboots: make(chan struct{}, 1),
	}
	if err := os.MkdirAll(env.confDir, 0755); err != nil {
		t.Fatal(err)
	}
	env.mock.SetScanResults([]radio.AccessPointInfo{
		{SSID: "home", BSSID: radio.HWAddr(bssidHome), SignalStrength: -40, Channel: 6},
		{SSID: "office", BSSID: radio.HWAddr(bssidOffice), SignalStrength: -70, Channel: 11},
	})

	credMgr, err := credentials.Load(config.NewMemStore[credentials.Set]())
	if err != nil {
		t.Fatalf("credentials.Load: %v", err)
	}
	env.creds = credentials.NewService(credMgr)
	w := wifi.New(env.mock, env.creds)
	w.SetSleep(func(time.Duration) {})
	if err := w.StartAPDefault(context.Background()); err != nil {
		t.Fatalf("StartAPDefault: %v", err)
	}
	env.wifi = wifi.NewShared(w)

	devMgr, err := device.Load(config.NewMemStore[models.DeviceSettings]())
	if err != nil {
		t.Fatalf("device.Load: %v", err)
	}
	env.device = device.NewService(devMgr, env.confDir, device.RebooterFunc(func() error {
		env.reboots <- struct{}{}
		return nil
	}))
	env.device.Subscribe(events.Forward(env.bus, events.KindDevice, func(s models.DeviceSettings) any {
		return device.Info{ID: s.ID, Name: s.Name, Mode: s.Mode}
	}))

	deps := api.Deps{
		Wifi:         env.wifi,
		Device:       env.device,
		Notification: state.NewShared(state.New(models.DefaultNotificationSettings(), config.NewMemStore[models.NotificationSettings]())),
		Schedule:     state.NewShared(state.New(models.DefaultActivationWindow(), config.NewMemStore[models.ActivationWindow]())),
		Events:       env.bus,
		Identity:     identity.Info{Hostname: "laserguard-test", Serial: "None", Version: "test"},
		SwitchDelay:  time.Millisecond,
		ForgetDelay:  time.Millisecond,
		RebootDelay:  time.Millisecond,
	}
	for _, fn := range tweak {
		fn(&deps)
	}

	authSvc, err := auth.NewService(t.TempDir()) // open mode
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	env.srv = httptest.NewServer(api.NewRouter(deps, authSvc))
	t.Cleanup(func() {
		env.srv.Close()
		authSvc.Close()
		env.wifi.Wait()
	})
	return env
}

// do is a convenience helper for making requests to the test server.
func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do %s %s: %v", method, path, err)
	}
	return resp
}

// decodeJSON reads and decodes a JSON response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireStatus fails the test if the response status doesn't match.
func requireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, expected, body)
	}
}

type errorBody struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// saved returns the credential stored for (ssid, bssid).
func saved(env *testEnv, ssid string, bssid credentials.BSSID) (credentials.Credential, bool) {
	return env.creds.Manager().State().Find(credentials.Key{SSID: ssid, BSSID: bssid})
}

func (env *testEnv) radioMode(t *testing.T) radio.Mode {
	t.Helper()
	var mode radio.Mode
	if err := env.wifi.With(func(w *wifi.Wifi) error {
		var err error
		mode, err = w.Mode()
		return err
	}); err != nil {
		t.Fatalf("Mode: %v", err)
	}
	return mode
}

func (env *testEnv) join(t *testing.T, ssid string) {
	t.Helper()
	if err := env.wifi.With(func(w *wifi.Wifi) error {
		return w.Connect(context.Background(), ssid, "secret-pw", nil, nil, 0)
	}); err != nil {
		t.Fatalf("Connect %s: %v", ssid, err)
	}
}

// --- Tests ---

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "GET", "/ping", "")
	requireStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("body = %q, want pong", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "OPTIONS", "/wifi/connect", "")
	requireStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-API-Key") {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestScanAccessPoints(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "GET", "/wifi/access-points/scan", "")
	requireStatus(t, resp, http.StatusOK)

	var out struct {
		Data struct {
			AccessPoints []struct {
				SSID  string `json:"ssid"`
				BSSID string `json:"bssid"`
			} `json:"access_points"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &out)

	aps := out.Data.AccessPoints
	if len(aps) != 2 || aps[0].SSID != "home" || aps[0].BSSID != bssidHome.String() {
		t.Errorf("access points = %+v", aps)
	}
	if env.mock.Scans() != 1 {
		t.Errorf("scans = %d, want 1", env.mock.Scans())
	}
}

func TestScanAccessPoints_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(d *api.Deps) {
		d.ScanLimiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	})

	resp := do(t, env.srv, "GET", "/wifi/access-points/scan", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env.srv, "GET", "/wifi/access-points/scan", "")
	requireStatus(t, resp, http.StatusTooManyRequests)
	resp.Body.Close()

	if env.mock.Scans() != 1 {
		t.Errorf("scans = %d, want 1", env.mock.Scans())
	}
}

func TestScanAccessPoints_DriverError(t *testing.T) {
	env := newTestEnv(t)
	env.mock.SetFailScan(true)

	resp := do(t, env.srv, "GET", "/wifi/access-points/scan", "")
	requireStatus(t, resp, http.StatusInternalServerError)

	var body errorBody
	decodeJSON(t, resp, &body)
	if body.Message == "" {
		t.Error("error response has no message")
	}
}

func TestConnect(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "POST", "/wifi/connect", `{"ssid":"home","psk":"secret-pw"}`)
	requireStatus(t, resp, http.StatusOK)

	var out struct {
		Message string `json:"message"`
	}
	decodeJSON(t, resp, &out)
	if out.Message == "" {
		t.Error("no message in response")
	}

	// bssid taken from the associated access point
	if _, ok := saved(env, "home", bssidHome); !ok {
		t.Errorf("credential not saved: %+v", env.creds.All())
	}
	if env.device.Mode() != models.ModeConnected {
		t.Errorf("device mode = %v, want connected", env.device.Mode())
	}

	// The provisioning access point is dropped afterwards.
	env.wifi.Wait()
	if got := env.radioMode(t); got != radio.ModeClient {
		t.Errorf("radio mode = %v, want client", got)
	}
}

func TestConnect_ExplicitBSSID(t *testing.T) {
	env := newTestEnv(t)

	body := `{"ssid":"home","psk":"secret-pw","bssid":"` + bssidOffice.String() + `"}`
	resp := do(t, env.srv, "POST", "/wifi/connect", body)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if _, ok := saved(env, "home", bssidOffice); !ok {
		t.Errorf("credentials = %+v, want home/%s", env.creds.All(), bssidOffice)
	}
}

func TestConnect_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.mock.SetConnectError(errors.New("association refused"))

	resp := do(t, env.srv, "POST", "/wifi/connect", `{"ssid":"home","psk":"secret-pw","retries":1}`)
	requireStatus(t, resp, http.StatusInternalServerError)

	var body errorBody
	decodeJSON(t, resp, &body)
	if !strings.Contains(body.Message, "association refused") {
		t.Errorf("message = %q", body.Message)
	}

	if n := len(env.mock.ConnectAttempts()); n != 2 {
		t.Errorf("connect attempts = %d, want 2", n)
	}
	if env.creds.Len() != 0 {
		t.Errorf("credential saved after failed connect: %+v", env.creds.All())
	}
	if env.device.Mode() != models.ModePair {
		t.Errorf("device mode = %v, want pair", env.device.Mode())
	}
	env.wifi.Wait()
	if got := env.radioMode(t); got != radio.ModeMixed {
		t.Errorf("radio mode = %v, want access point kept (mixed)", got)
	}
}

func TestConnect_BadRequest(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid json", `{"ssid":`, ""},
		{"missing ssid", `{"psk":"x"}`, ""},
		{"bad bssid", `{"ssid":"home","psk":"x","bssid":"nope"}`, ""},
		{"ssid too long", `{"ssid":"` + strings.Repeat("s", wifi.MaxSSIDLen+1) + `","psk":"x"}`, "ssid"},
		{"psk too long", `{"ssid":"home","psk":"` + strings.Repeat("p", wifi.MaxPSKLen+1) + `"}`, "psk"},
	}

	env := newTestEnv(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, env.srv, "POST", "/wifi/connect", tc.body)
			requireStatus(t, resp, http.StatusBadRequest)

			var body errorBody
			decodeJSON(t, resp, &body)
			if body.Field != tc.field {
				t.Errorf("field = %q, want %q", body.Field, tc.field)
			}
		})
	}
	if n := len(env.mock.ConnectAttempts()); n != 0 {
		t.Errorf("connect attempts = %d, want 0", n)
	}
}

func TestSavedCredentials_HidesPSK(t *testing.T) {
	env := newTestEnv(t)
	if err := env.creds.SaveCredential("home", "secret-pw", bssidHome); err != nil {
		t.Fatal(err)
	}
	if err := env.creds.SaveCredential("cafe", "", bssidOffice); err != nil {
		t.Fatal(err)
	}

	resp := do(t, env.srv, "GET", "/wifi/access-points/credentials", "")
	requireStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if strings.Contains(string(raw), "secret-pw") {
		t.Fatalf("psk leaked: %s", raw)
	}
	var out struct {
		Data []struct {
			SSID    string `json:"ssid"`
			Secured bool   `json:"secured"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	secured := map[string]bool{}
	for _, c := range out.Data {
		secured[c.SSID] = c.Secured
	}
	if len(secured) != 2 || !secured["home"] || secured["cafe"] {
		t.Errorf("credentials = %s", raw)
	}
}

func TestForget_ActiveNetworkReconnectsElsewhere(t *testing.T) {
	env := newTestEnv(t)
	_ = env.creds.SaveCredential("home", "secret-pw", bssidHome)
	_ = env.creds.SaveCredential("office", "secret-pw", bssidOffice)
	_ = env.device.SetMode(models.ModeConnected)
	env.join(t, "home")

	resp := do(t, env.srv, "POST", "/wifi/access-points/credentials/forget?ssid=home", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	env.wifi.Wait()

	if _, ok := saved(env, "home", bssidHome); ok {
		t.Error("home still saved")
	}
	attempts := env.mock.ConnectAttempts()
	if last := attempts[len(attempts)-1]; last.SSID != "office" || last.Err != nil {
		t.Errorf("last attempt = %+v, want office", last)
	}
	if env.device.Mode() != models.ModeConnected {
		t.Errorf("device mode = %v, want connected", env.device.Mode())
	}
}

func TestForget_LastNetworkFallsBackToPair(t *testing.T) {
	env := newTestEnv(t)
	_ = env.creds.SaveCredential("home", "secret-pw", bssidHome)
	_ = env.device.SetMode(models.ModeConnected)
	env.join(t, "home")
	before := len(env.mock.ConnectAttempts())

	resp := do(t, env.srv, "POST", "/wifi/access-points/credentials/forget?ssid=home&bssid="+bssidHome.String(), "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	env.wifi.Wait()

	if env.creds.Len() != 0 {
		t.Errorf("credentials = %+v", env.creds.All())
	}
	if got := len(env.mock.ConnectAttempts()); got != before {
		t.Errorf("connect attempts grew from %d to %d", before, got)
	}
	if env.device.Mode() != models.ModePair {
		t.Errorf("device mode = %v, want pair", env.device.Mode())
	}
	var apEnabled bool
	_ = env.wifi.With(func(w *wifi.Wifi) error {
		apEnabled, _ = w.IsAPEnabled()
		return nil
	})
	if !apEnabled {
		t.Error("provisioning access point not restored")
	}
	if !slices.Contains(env.mock.Calls(), "disconnect") {
		t.Errorf("calls = %v, want the forgotten network dropped", env.mock.Calls())
	}
	if connected, _ := env.mock.IsConnected(); connected {
		t.Error("still associated with the forgotten network")
	}
}

func TestForget_OtherNetworkLeavesLinkAlone(t *testing.T) {
	env := newTestEnv(t)
	_ = env.creds.SaveCredential("home", "secret-pw", bssidHome)
	_ = env.creds.SaveCredential("office", "secret-pw", bssidOffice)
	env.join(t, "home")
	before := env.mock.Scans()

	resp := do(t, env.srv, "POST", "/wifi/access-points/credentials/forget?ssid=office", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	env.wifi.Wait()

	if env.mock.Scans() != before {
		t.Error("forgetting an inactive network triggered a reconnect")
	}
	if _, ok := saved(env, "home", bssidHome); !ok {
		t.Error("home was removed")
	}
}

func TestForget_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/wifi/access-points/credentials/forget",
		"/wifi/access-points/credentials/forget?ssid=home&bssid=zz",
	} {
		resp := do(t, env.srv, "POST", path, "")
		requireStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	}
}

func TestWifiStatus(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "home")

	resp := do(t, env.srv, "GET", "/wifi/status", "")
	requireStatus(t, resp, http.StatusOK)

	var out struct {
		Data struct {
			Started     bool   `json:"started"`
			Connected   bool   `json:"connected"`
			Mode        string `json:"mode"`
			AccessPoint *struct {
				SSID string `json:"ssid"`
			} `json:"access_point"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &out)
	st := out.Data
	if !st.Started || !st.Connected || st.Mode != "mixed" {
		t.Errorf("status = %+v", st)
	}
	if st.AccessPoint == nil || st.AccessPoint.SSID != "home" {
		t.Errorf("access point = %+v", st.AccessPoint)
	}
}

type deviceInfoResponse struct {
	Data struct {
		DeviceInfo struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Mode    string `json:"mode"`
			Version string `json:"version"`
			Online  *bool  `json:"online"`
		} `json:"device_info"`
	} `json:"data"`
}

func TestDeviceInfo(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "GET", "/device/info", "")
	requireStatus(t, resp, http.StatusOK)

	var out deviceInfoResponse
	decodeJSON(t, resp, &out)
	info := out.Data.DeviceInfo
	if info.ID != env.device.Info().ID.String() || info.Name != models.DefaultDeviceName || info.Mode != "pair" {
		t.Errorf("device info = %+v", info)
	}
	if info.Version != "test" {
		t.Errorf("version = %q", info.Version)
	}
	if info.Online != nil {
		t.Error("online reported without maintenance")
	}
}

func TestSetDeviceName(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "PATCH", "/device/name", `{"name":"Back Gate"}`)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if got := env.device.Info().Name; got != "Back Gate" {
		t.Errorf("name = %q", got)
	}

	resp = do(t, env.srv, "PATCH", "/device/name", `{"name":""}`)
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
	if got := env.device.Info().Name; got != "Back Gate" {
		t.Errorf("name changed by rejected request: %q", got)
	}
}

func waitReboot(t *testing.T, env *testEnv) {
	t.Helper()
	select {
	case <-env.reboots:
	case <-time.After(2 * time.Second):
		t.Fatal("reboot not requested")
	}
}

func TestRestart(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "POST", "/device/restart", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	waitReboot(t, env)
	if _, err := os.Stat(env.confDir); err != nil {
		t.Errorf("restart touched the config dir: %v", err)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "POST", "/device/reset", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	waitReboot(t, env)
	if _, err := os.Stat(env.confDir); !os.IsNotExist(err) {
		t.Errorf("config dir still present: %v", err)
	}
}

type fakeMaintenance struct {
	backups []string
	err     error
}

func (f *fakeMaintenance) Online() bool { return true }

func (f *fakeMaintenance) RunBackupNow() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.backups = append(f.backups, "laserguard-config-2026-01-02.tar.gz")
	return "/data/backups/laserguard-config-2026-01-02.tar.gz", nil
}

func (f *fakeMaintenance) ListBackups() ([]string, error) { return f.backups, f.err }

func TestBackups(t *testing.T) {
	maint := &fakeMaintenance{}
	env := newTestEnv(t, func(d *api.Deps) { d.Maintenance = maint })

	resp := do(t, env.srv, "GET", "/device/backups", "")
	requireStatus(t, resp, http.StatusOK)
	var list struct {
		Data []string `json:"data"`
	}
	decodeJSON(t, resp, &list)
	if list.Data == nil || len(list.Data) != 0 {
		t.Errorf("backups = %v, want empty list", list.Data)
	}

	resp = do(t, env.srv, "POST", "/device/backup", "")
	requireStatus(t, resp, http.StatusOK)
	var created struct {
		Data struct {
			Path string `json:"path"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &created)
	if !strings.HasSuffix(created.Data.Path, ".tar.gz") {
		t.Errorf("path = %q", created.Data.Path)
	}

	resp = do(t, env.srv, "GET", "/device/info", "")
	var info deviceInfoResponse
	decodeJSON(t, resp, &info)
	if online := info.Data.DeviceInfo.Online; online == nil || !*online {
		t.Errorf("online = %v", online)
	}

	maint.err = errors.New("disk full")
	resp = do(t, env.srv, "POST", "/device/backup", "")
	requireStatus(t, resp, http.StatusInternalServerError)
	resp.Body.Close()
}

func TestBackups_Disabled(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "POST", "/device/backup", "")
	requireStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestNotificationSettings(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "GET", "/notification", "")
	requireStatus(t, resp, http.StatusOK)
	var got struct {
		Data models.NotificationSettings `json:"data"`
	}
	decodeJSON(t, resp, &got)
	if got.Data.Enabled || got.Data.Message != models.DefaultSMSBody {
		t.Errorf("defaults = %+v", got.Data)
	}

	// Omitted fields keep their value.
	resp = do(t, env.srv, "PUT", "/notification", `{"enabled":true,"recipients":["+15551234567"]}`)
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &got)
	if !got.Data.Enabled || len(got.Data.Recipients) != 1 || got.Data.Message != models.DefaultSMSBody {
		t.Errorf("after put = %+v", got.Data)
	}
	if got.Data.Cooldown != models.Duration(models.DefaultCooldown) {
		t.Errorf("cooldown = %v", got.Data.Cooldown)
	}

	resp = do(t, env.srv, "PUT", "/notification", `{"recipients":["call me"]}`)
	requireStatus(t, resp, http.StatusBadRequest)
	var body errorBody
	decodeJSON(t, resp, &body)
	if body.Field != "recipients" {
		t.Errorf("field = %q", body.Field)
	}

	resp = do(t, env.srv, "GET", "/notification", "")
	decodeJSON(t, resp, &got)
	if len(got.Data.Recipients) != 1 || got.Data.Recipients[0] != "+15551234567" {
		t.Errorf("rejected put changed the settings: %+v", got.Data)
	}
}

func TestScheduleSettings(t *testing.T) {
	env := newTestEnv(t)

	resp := do(t, env.srv, "PUT", "/schedule", `{"enabled":true,"start":"22:30","end":"05:15"}`)
	requireStatus(t, resp, http.StatusOK)
	var got struct {
		Data models.ActivationWindow `json:"data"`
	}
	decodeJSON(t, resp, &got)
	if !got.Data.Enabled || got.Data.Start != models.NewTimeOfDay(22, 30) || got.Data.End != models.NewTimeOfDay(5, 15) {
		t.Errorf("window = %+v", got.Data)
	}

	resp = do(t, env.srv, "PUT", "/schedule", `{"start":"25:00"}`)
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestEvents_StreamsSnapshotAndChanges(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", env.srv.URL+"/events", nil)
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() events.Event {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev events.Event
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					t.Fatalf("bad event %q: %v", data, err)
				}
				return ev
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return events.Event{}
	}

	for _, want := range []string{events.KindDevice, events.KindNotification, events.KindSchedule} {
		if ev := next(); ev.Kind != want {
			t.Fatalf("snapshot kind = %q, want %q", ev.Kind, want)
		}
	}

	if err := env.device.SetName("Porch"); err != nil {
		t.Fatal(err)
	}
	ev := next()
	data, _ := ev.Data.(map[string]any)
	if ev.Kind != events.KindDevice || data["name"] != "Porch" {
		t.Errorf("event = %+v", ev)
	}
}

func TestAuth_RequiresKey(t *testing.T) {
	dir := t.TempDir()
	authSvc, err := auth.NewService(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(authSvc.Close)
	key, err := authSvc.AddKey("app")
	if err != nil {
		t.Fatal(err)
	}

	env := newTestEnv(t)
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Wifi:   env.wifi,
		Device: env.device,
		Events: env.bus,
	}, authSvc))
	t.Cleanup(srv.Close)

	resp := do(t, srv, "GET", "/ping", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, srv, "GET", "/device/info", "")
	requireStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	req, _ := http.NewRequest("GET", srv.URL+"/device/info", nil)
	req.Header.Set("X-API-Key", key)
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}
