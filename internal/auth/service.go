// Package auth gates the management API behind API keys kept in a JSON file
// that is reloaded whenever it changes on disk.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KeysFileName is the key file inside the data directory.
const KeysFileName = "api_keys.json"

// Key is one named API key.
type Key struct {
	Key     string    `json:"key"`
	Created time.Time `json:"created"`
}

// Service holds the configured keys. With no keys configured the API is open,
// which is how a freshly provisioned device is reached.
type Service struct {
	mu      sync.RWMutex
	dir     string
	keys    map[string]Key
	watcher *fsnotify.Watcher
}

// NewService loads the key file from dir and watches it for changes.
func NewService(dir string) (*Service, error) {
	s := &Service{
		dir:  dir,
		keys: make(map[string]Key),
	}

	// Missing file is OK: open mode
	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create fsnotify watcher", "err", err)
		return s, nil
	}
	s.watcher = watcher

	if err := watcher.Add(dir); err != nil {
		slog.Warn("auth: could not watch key dir", "dir", dir, "err", err)
	}

	go s.watchLoop(s.keysPath())
	return s, nil
}

func (s *Service) keysPath() string {
	return filepath.Join(s.dir, KeysFileName)
}

// Reload re-reads the key file.
func (s *Service) Reload() error {
	keys, err := readKeys(s.keysPath())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	slog.Debug("auth: reloaded keys", "count", len(keys))
	return nil
}

func readKeys(path string) (map[string]Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]Key), nil
		}
		return nil, err
	}
	keys := make(map[string]Key)
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	return keys, nil
}

// IsOpenMode reports whether no key is configured.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 0
}

// VerifyKey reports whether key matches a configured key, in constant time.
func (s *Service) VerifyKey(key string) bool {
	if key == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok := false
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k.Key)) == 1 {
			ok = true
		}
	}
	return ok
}

// AddKey generates a key under name, writes the key file and returns the key.
// An existing key with the same name is replaced.
func (s *Service) AddKey(name string) (string, error) {
	if name == "" {
		return "", errors.New("auth: key name must not be empty")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]Key, len(s.keys)+1)
	for n, k := range s.keys {
		next[n] = k
	}
	next[name] = Key{Key: secret, Created: time.Now().UTC()}
	if err := writeKeys(s.keysPath(), next); err != nil {
		return "", err
	}
	s.keys = next
	return secret, nil
}

// RevokeKey removes the key called name. Revoking the last key opens the API.
func (s *Service) RevokeKey(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[name]; !ok {
		return fmt.Errorf("auth: no key named %q", name)
	}
	next := make(map[string]Key, len(s.keys))
	for n, k := range s.keys {
		if n != name {
			next[n] = k
		}
	}
	if err := writeKeys(s.keysPath(), next); err != nil {
		return err
	}
	s.keys = next
	return nil
}

func writeKeys(path string, keys map[string]Key) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close stops the file watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *Service) watchLoop(keysPath string) {
	if s.watcher == nil {
		return
	}
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != keysPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload keys", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}
