// Package identity reports what this appliance is: its hostname, board
// serial and software version.
package identity

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DefaultVersion is the fallback version string when metadata.json is not found.
const DefaultVersion = "0.1.0-go"

// CPUInfoPath is where the Raspberry Pi firmware exposes the board serial.
const CPUInfoPath = "/proc/cpuinfo"

// Info holds system identity information.
type Info struct {
	Hostname string `json:"hostname"`
	Serial   string `json:"serial"`  // board serial, or "None" if unreadable
	Version  string `json:"version"` // software version string e.g. "0.1.3"
}

// Get collects identity information, reading the version from dataDir.
func Get(dataDir string) Info {
	return Info{
		Hostname: GetHostname(),
		Serial:   GetSerial(CPUInfoPath),
		Version:  GetVersionFromDir(dataDir),
	}
}

// GetHostname returns the system hostname.
func GetHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "laserguard"
	}
	return h
}

// GetVersionFromDir reads the version from dir/metadata.json.
// Falls back to DefaultVersion if the file is missing or unreadable.
func GetVersionFromDir(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return DefaultVersion
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return DefaultVersion
	}

	if v, ok := meta["version"].(string); ok && v != "" {
		return v
	}
	return DefaultVersion
}

// GetSerial returns the "Serial" field of a cpuinfo file, or "None".
func GetSerial(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "None"
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Serial" {
			continue
		}
		if v := strings.TrimSpace(val); v != "" {
			return v
		}
	}
	return "None"
}
