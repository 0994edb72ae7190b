package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
)

// FileStore keeps settings in a YAML file. Reads are lock-free snapshots.
type FileStore struct {
	path    string
	current atomic.Pointer[Settings]
	writeMu sync.Mutex
}

// OpenFile loads path, falling back to defaults when the file does not exist.
func OpenFile(path string) (*FileStore, error) {
	f := &FileStore{path: path}
	s, err := readFile(path)
	if err != nil {
		return nil, err
	}
	f.current.Store(&s)
	return f, nil
}

func readFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, errors.WrapError(err, errors.CategoryConfig, "read settings").
			WithContext("path", path).Build()
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, errors.WrapError(err, errors.CategoryConfig, "parse settings").
			WithContext("path", path).Build()
	}
	return s.Normalize(), nil
}

func (f *FileStore) Path() string { return f.path }

// Current returns the latest loaded settings.
func (f *FileStore) Current() Settings {
	return *f.current.Load()
}

// Save normalizes s, writes it atomically and makes it current.
func (f *FileStore) Save(s Settings) (Settings, error) {
	s = s.Normalize()
	data, err := yaml.Marshal(s)
	if err != nil {
		return Settings{}, errors.WrapError(err, errors.CategoryInternal, "encode settings").Build()
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Settings{}, errors.WrapError(err, errors.CategoryConfig, "create settings dir").Build()
		}
	}
	tmp := fmt.Sprintf("%s.tmp-%d", f.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Settings{}, errors.WrapError(err, errors.CategoryConfig, "write settings").
			WithContext("path", f.path).Build()
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return Settings{}, errors.WrapError(err, errors.CategoryConfig, "replace settings").
			WithContext("path", f.path).Build()
	}
	f.current.Store(&s)
	return s, nil
}

// Reload re-reads the file. On a parse error the previous settings stay current.
func (f *FileStore) Reload() error {
	s, err := readFile(f.path)
	if err != nil {
		return err
	}
	f.current.Store(&s)
	slog.Info("Settings reloaded", logfields.Path(f.path),
		slog.Int("snooze_minutes", s.SnoozeMinutes), slog.Bool("vibration", s.Vibration()))
	return nil
}
