package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFlagSet(t *testing.T, args ...string) (*flag.FlagSet, *string, *uint, *bool) {
	t.Helper()
	fs := flag.NewFlagSet("laserguard", flag.ContinueOnError)
	iface := fs.String("sta-iface", "wlan0", "")
	retries := fs.Uint("reconnect-retries", 2, "")
	debug := fs.Bool("debug", false, "")
	fs.String("add-api-key", "", "")
	fs.String("revoke-api-key", "", "")
	fs.String("config", "", "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return fs, iface, retries, debug
}

func writeOptions(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "laserguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyOptionsFile(t *testing.T) {
	fs, iface, retries, debug := newFlagSet(t, "--sta-iface", "wlan1")
	path := writeOptions(t, "sta-iface: wlan9\nreconnect-retries: 4\ndebug: true\n")

	if err := applyOptionsFile(fs, path); err != nil {
		t.Fatalf("applyOptionsFile: %v", err)
	}
	if *iface != "wlan1" {
		t.Errorf("sta-iface = %q, command line must win", *iface)
	}
	if *retries != 4 || !*debug {
		t.Errorf("retries = %d, debug = %v", *retries, *debug)
	}
}

func TestApplyOptionsFile_Missing(t *testing.T) {
	fs, iface, _, _ := newFlagSet(t)

	if err := applyOptionsFile(fs, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if *iface != "wlan0" {
		t.Errorf("sta-iface = %q", *iface)
	}
}

func TestApplyOptionsFile_Errors(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"unknown key", "colour: red\n", "unknown option"},
		{"bad value", "reconnect-retries: lots\n", "reconnect-retries"},
		{"bad yaml", "sta-iface: [\n", "parse"},
		{"add key", "add-api-key: installer\n", "only accepted on the command line"},
		{"revoke key", "revoke-api-key: installer\n", "only accepted on the command line"},
		{"nested config", "config: /tmp/other.yaml\n", "only accepted on the command line"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs, _, _, _ := newFlagSet(t)
			err := applyOptionsFile(fs, writeOptions(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{":80", 80},
		{"0.0.0.0:8080", 8080},
		{"localhost", 80},
		{":0", 80},
	}
	for _, tc := range tests {
		if got := listenPort(tc.addr); got != tc.want {
			t.Errorf("listenPort(%q) = %d, want %d", tc.addr, got, tc.want)
		}
	}
}
