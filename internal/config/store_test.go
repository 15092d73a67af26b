package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	all := append([]StoreOption{
		WithConfigDir(t.TempDir()),
		WithLiveReload(false),
	}, opts...)
	s := NewStore(all...)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_Defaults(t *testing.T) {
	s := newTestStore(t)

	if v, err := s.GetString("shell.path"); err != nil || v != "mongo" {
		t.Errorf("GetString(shell.path) = %q, %v", v, err)
	}
	if v, err := s.GetFloat("shell.timeout"); err != nil || v != 5.0 {
		t.Errorf("GetFloat(shell.timeout) = %v, %v", v, err)
	}
	if v, err := s.GetBool("connection.allowInvalidTLS"); err != nil || v {
		t.Errorf("GetBool(connection.allowInvalidTLS) = %v, %v", v, err)
	}
	if v, err := s.GetInt("history.limit"); err != nil || v != 1000 {
		t.Errorf("GetInt(history.limit) = %v, %v", v, err)
	}
}

func TestStore_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", `
[shell]
timeout = 2.0

[connection]
target = "mongodb://staging:27017"
`)

	s := newTestStore(t, WithConfigDir(dir))

	if v, _ := s.GetFloat("shell.timeout"); v != 2.0 {
		t.Errorf("shell.timeout = %v, want file value 2.0", v)
	}
	if v, _ := s.GetString("connection.target"); v != "mongodb://staging:27017" {
		t.Errorf("connection.target = %q", v)
	}
	// Settings absent from the file keep their defaults.
	if v, _ := s.GetString("shell.path"); v != "mongo" {
		t.Errorf("shell.path = %q, want default", v)
	}
	if s.FilePath() == "" {
		t.Error("FilePath() is empty with a config file present")
	}
}

func TestStore_YAMLConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "shell:\n  path: /opt/mongo/bin/mongo\n")

	s := newTestStore(t, WithConfigDir(dir))

	if v, _ := s.GetString("shell.path"); v != "/opt/mongo/bin/mongo" {
		t.Errorf("shell.path = %q, want the yaml value", v)
	}
}

func TestStore_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", "[shell]\ntimeout = 2.0\n")
	t.Setenv("MONGOPILOT_SHELL_TIMEOUT", "9.5")

	s := newTestStore(t, WithConfigDir(dir))

	if v, _ := s.GetFloat("shell.timeout"); v != 9.5 {
		t.Errorf("shell.timeout = %v, want env value 9.5", v)
	}
}

func TestStore_SetOverridesEverything(t *testing.T) {
	t.Setenv("MONGOPILOT_SHELL_TIMEOUT", "9.5")
	s := newTestStore(t)

	if err := s.Set("shell.timeout", 1.5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := s.GetFloat("shell.timeout"); v != 1.5 {
		t.Errorf("shell.timeout = %v, want runtime value 1.5", v)
	}
}

func TestStore_Set_Validates(t *testing.T) {
	s := newTestStore(t)

	err := s.Set("shell.timeout", "soon")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Set() error = %v, want *ValidationError", err)
	}

	err = s.Set("log.level", "verbose")
	if !errors.As(err, &ve) {
		t.Fatalf("Set() enum error = %v, want *ValidationError", err)
	}

	// Unknown paths are accepted; they may belong to future sections.
	if err := s.Set("custom.flag", true); err != nil {
		t.Errorf("Set() for unknown path error = %v", err)
	}
}

func TestStore_Set_Notifies(t *testing.T) {
	s := newTestStore(t)

	var got Change
	sub := s.SubscribePath("shell", func(c Change) { got = c })
	defer sub.Unsubscribe()

	if err := s.Set("shell.timeout", 3.0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if got.Path != "shell.timeout" {
		t.Fatalf("observer saw path %q, want shell.timeout", got.Path)
	}
	if got.Type != ChangeSet {
		t.Errorf("change type = %v, want set", got.Type)
	}
	if got.OldValue != 5.0 || got.NewValue != 3.0 {
		t.Errorf("change values = %v -> %v, want 5 -> 3", got.OldValue, got.NewValue)
	}
}

func TestStore_Subscribe_Unsubscribe(t *testing.T) {
	s := newTestStore(t)

	calls := 0
	sub := s.Subscribe(func(Change) { calls++ })

	_ = s.Set("shell.timeout", 3.0)
	sub.Unsubscribe()
	_ = s.Set("shell.timeout", 4.0)

	if calls != 1 {
		t.Errorf("observer called %d times, want 1", calls)
	}
}

func TestStore_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", "[shell]\ntimeout = 2.0\n")

	s := newTestStore(t, WithFile(path))

	reloads := 0
	sub := s.Subscribe(func(c Change) {
		if c.Type == ChangeReload {
			reloads++
		}
	})
	defer sub.Unsubscribe()

	writeFile(t, dir, "config.toml", "[shell]\ntimeout = 7.0\n")
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if v, _ := s.GetFloat("shell.timeout"); v != 7.0 {
		t.Errorf("shell.timeout = %v after reload, want 7.0", v)
	}
	if reloads != 1 {
		t.Errorf("reload notifications = %d, want 1", reloads)
	}
}

func TestStore_Reload_KeepsRuntimeOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", "[shell]\ntimeout = 2.0\n")

	s := newTestStore(t, WithFile(path))
	if err := s.Set("repl.prompt", ">> "); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	writeFile(t, dir, "config.toml", "[shell]\ntimeout = 7.0\n")
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if v, _ := s.GetString("repl.prompt"); v != ">> " {
		t.Errorf("repl.prompt = %q, runtime override lost on reload", v)
	}
}

func TestStore_UnknownSetting(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetString("no.such.path"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("GetString() error = %v, want ErrSettingNotFound", err)
	}
}

func TestStore_TypeErrors(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetInt("shell.path"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetInt(shell.path) error = %v, want a type mismatch", err)
	}
	if _, err := s.GetBool("shell.timeout"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetBool(shell.timeout) error = %v, want a type mismatch", err)
	}
}

func TestStore_Settings(t *testing.T) {
	s := newTestStore(t)

	settings := s.Settings()
	if len(settings) == 0 {
		t.Fatal("Settings() returned nothing")
	}

	found := false
	for _, st := range settings {
		if st.Path == "shell.timeout" {
			found = true
		}
	}
	if !found {
		t.Error("Settings() does not include shell.timeout")
	}
}

func TestStore_LiveReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", "[shell]\ntimeout = 2.0\n")

	s := NewStore(WithFile(path), WithLiveReload(true))
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte("[shell]\ntimeout = 8.0\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := s.GetFloat("shell.timeout"); v == 8.0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("file change was not picked up")
}
