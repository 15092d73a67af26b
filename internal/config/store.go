package config

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mongopilot/mongopilot/internal/logging"
)

// Layer priorities, low to high. Higher priorities win during merge.
const (
	priorityDefaults = 0
	priorityFile     = 50
	priorityEnv      = 100
	priorityRuntime  = 200
)

// layer is one configuration source with its merge priority.
type layer struct {
	name     string
	priority int
	data     map[string]any
}

// Store provides unified access to the mongopilot configuration. Values are
// merged from built-in defaults, the config file, environment variables,
// and runtime overrides, in that order of increasing priority.
//
// A Store is safe for concurrent use. Reads always see the current merged
// state, so a value changed at runtime or by a file reload is visible to
// the next read without any restart.
type Store struct {
	mu       sync.RWMutex
	registry *Registry
	layers   []*layer
	merged   map[string]any // merge cache, nil when dirty

	notifier *notifier
	watcher  *Watcher
	log      *logging.Logger

	configDir  string
	filePath   string // explicit path, or resolved during Load
	liveReload bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithConfigDir sets the directory searched for the config file.
func WithConfigDir(dir string) StoreOption {
	return func(s *Store) {
		s.configDir = dir
	}
}

// WithFile sets an explicit config file path instead of searching the
// config directory.
func WithFile(path string) StoreOption {
	return func(s *Store) {
		s.filePath = path
	}
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l *logging.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// WithLiveReload controls whether the config file is watched for changes.
func WithLiveReload(enable bool) StoreOption {
	return func(s *Store) {
		s.liveReload = enable
	}
}

// NewStore creates a Store with the given options. Call Load before reading
// values.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		registry:   NewRegistryWithDefaults(),
		notifier:   newNotifier(),
		log:        logging.NullLogger,
		liveReload: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.configDir == "" {
		s.configDir = DefaultConfigDir()
	}

	return s
}

// Load reads all configuration sources and, when live reload is enabled and
// a config file exists, starts watching it.
func (s *Store) Load() error {
	s.mu.Lock()

	s.layers = nil
	s.addLayer("defaults", priorityDefaults, s.defaultsData())

	path := s.resolveFilePath()
	s.filePath = path
	if path != "" {
		data, err := LoaderFor(path).Load()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if data != nil {
			s.addLayer("file", priorityFile, data)
		}
	}

	env, err := NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(env) > 0 {
		s.addLayer("env", priorityEnv, env)
	}

	s.merged = nil
	startWatch := s.liveReload && path != "" && s.watcher == nil
	s.mu.Unlock()

	if startWatch {
		w, err := NewWatcher(path, 0, func(string) {
			if err := s.Reload(); err != nil {
				s.log.Warn("config reload failed: %v", err)
			}
		})
		if err != nil {
			s.log.Warn("config watch unavailable: %v", err)
			return nil
		}
		s.mu.Lock()
		s.watcher = w
		s.mu.Unlock()
		s.log.Debug("watching config file %s", path)
	}

	return nil
}

// Reload re-reads the config file layer and notifies observers. Defaults,
// environment, and runtime overrides are left as loaded.
func (s *Store) Reload() error {
	s.mu.Lock()
	path := s.filePath
	if path == "" {
		s.mu.Unlock()
		return nil
	}

	data, err := LoaderFor(path).Load()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.removeLayer("file")
	if data != nil {
		s.addLayer("file", priorityFile, data)
	}
	s.merged = nil
	s.mu.Unlock()

	s.log.Info("configuration reloaded from %s", path)
	s.notifier.notify(Change{Type: ChangeReload, Source: path})
	return nil
}

// Close stops the file watcher and change delivery.
func (s *Store) Close() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	s.notifier.close()
}

// Get returns the effective value at the given path. Unset registered
// settings fall back to their default.
func (s *Store) Get(path string) (any, bool) {
	s.mu.Lock()
	merged := s.mergeLocked()
	s.mu.Unlock()

	if v, ok := getByPath(merged, path); ok {
		return v, true
	}
	if setting := s.registry.Get(path); setting != nil {
		return setting.Default, true
	}
	return nil, false
}

// GetString reads path as a string.
func (s *Store) GetString(path string) (string, error) {
	v, ok := s.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	str, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return str, nil
}

// GetInt reads path as an int, converting the numeric types decoders
// produce.
func (s *Store) GetInt(path string) (int, error) {
	v, ok := s.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
	}
}

// GetFloat reads path as a float64, accepting whole numbers too.
func (s *Store) GetFloat(path string) (float64, error) {
	v, ok := s.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "float64", Actual: typeName(v)}
	}
}

// GetBool reads path as a bool.
func (s *Store) GetBool(path string) (bool, error) {
	v, ok := s.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// Set stores a runtime override at the given path. Registered settings are
// validated first; observers see the effective values before and after.
func (s *Store) Set(path string, value any) error {
	if err := s.registry.Validate(path, value); err != nil {
		return &ValidationError{Path: path, Message: err.Error(), Value: value}
	}

	s.mu.Lock()
	oldValue, _ := getByPath(s.mergeLocked(), path)

	runtime := s.getLayer("runtime")
	if runtime == nil {
		runtime = s.addLayer("runtime", priorityRuntime, make(map[string]any))
	}
	if err := setByPath(runtime.data, path, value); err != nil {
		s.mu.Unlock()
		return err
	}
	s.merged = nil

	newValue, _ := getByPath(s.mergeLocked(), path)
	s.mu.Unlock()

	s.log.Debug("setting %s changed: %v -> %v", path, oldValue, newValue)
	s.notifier.notify(Change{
		Path:     path,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   "runtime",
	})
	return nil
}

// Subscribe delivers every configuration change to observer.
func (s *Store) Subscribe(observer Observer) *Subscription {
	return s.notifier.subscribe(observer)
}

// SubscribePath registers an observer for changes to a specific path or its
// children.
func (s *Store) SubscribePath(path string, observer Observer) *Subscription {
	return s.notifier.subscribePath(path, observer)
}

// Settings returns all registered setting definitions sorted by path.
func (s *Store) Settings() []*Setting {
	return s.registry.All()
}

// FilePath returns the config file in use, or empty when none was found.
func (s *Store) FilePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filePath
}

// addLayer inserts a layer keeping the slice sorted by priority.
// Caller must hold mu.
func (s *Store) addLayer(name string, priority int, data map[string]any) *layer {
	l := &layer{name: name, priority: priority, data: data}
	s.layers = append(s.layers, l)
	sort.SliceStable(s.layers, func(i, j int) bool {
		return s.layers[i].priority < s.layers[j].priority
	})
	return l
}

// removeLayer drops a layer by name. Caller must hold mu.
func (s *Store) removeLayer(name string) {
	for i, l := range s.layers {
		if l.name == name {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			return
		}
	}
}

// getLayer returns a layer by name. Caller must hold mu.
func (s *Store) getLayer(name string) *layer {
	for _, l := range s.layers {
		if l.name == name {
			return l
		}
	}
	return nil
}

// mergeLocked returns the merged configuration, rebuilding the cache when
// dirty. Caller must hold mu.
func (s *Store) mergeLocked() map[string]any {
	if s.merged != nil {
		return s.merged
	}

	merged := make(map[string]any)
	for _, l := range s.layers {
		merged = DeepMerge(merged, Clone(l.data))
	}
	s.merged = merged
	return merged
}

// defaultsData expands the registry defaults into a nested map.
func (s *Store) defaultsData() map[string]any {
	data := make(map[string]any)
	for path, value := range s.registry.Defaults() {
		_ = setByPath(data, path, value)
	}
	return data
}

// resolveFilePath returns the config file to load. An explicit path wins;
// otherwise the config directory is searched. Caller must hold mu.
func (s *Store) resolveFilePath() string {
	if s.filePath != "" {
		return s.filePath
	}
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		p := filepath.Join(s.configDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultConfigDir returns the default user configuration directory.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mongopilot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mongopilot")
}

// typeName renders a value's type for TypeError messages.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case string:
		return "string"
	case int, int64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case []any:
		return "[]any"
	case map[string]any:
		return "map"
	default:
		return "unknown"
	}
}
