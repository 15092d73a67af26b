package config

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Setting is the schema for one configuration path: its type, default,
// and constraints. The registry holds one per known path.
type Setting struct {
	// Path is the dot-separated name, "shell.timeout" for example.
	Path string

	Type SettingType

	// Default applies when no layer provides a value.
	Default any

	// Description is shown by :settings.
	Description string

	// Enum lists the accepted values for TypeEnum settings.
	Enum []any

	// Minimum and Maximum bound numeric settings when non-nil.
	Minimum *float64
	Maximum *float64
}

// Validate reports whether value fits this setting's schema.
func (s *Setting) Validate(value any) error {
	if err := s.validateType(value); err != nil {
		return err
	}
	if len(s.Enum) > 0 && !slices.Contains(s.Enum, value) {
		return fmt.Errorf("value must be one of: %v", s.Enum)
	}
	if s.Type == TypeInt || s.Type == TypeFloat {
		if err := s.validateRange(value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Setting) validateType(value any) error {
	switch s.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case TypeInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case TypeFloat:
		// A whole number is fine where a float is wanted.
		switch value.(type) {
		case float32, float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case TypeEnum:
		// Membership is the whole check, done in Validate.
	}
	return nil
}

func (s *Setting) validateRange(value any) error {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil
	}

	if s.Minimum != nil && f < *s.Minimum {
		return fmt.Errorf("value %v is less than minimum %v", value, *s.Minimum)
	}
	if s.Maximum != nil && f > *s.Maximum {
		return fmt.Errorf("value %v is greater than maximum %v", value, *s.Maximum)
	}
	return nil
}

// SettingType is the declared type of a setting's value.
type SettingType uint8

// The supported setting types.
const (
	TypeString SettingType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeEnum
)

// String names the type the way :settings prints it.
func (t SettingType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "integer"
	case TypeFloat:
		return "number"
	case TypeBool:
		return "boolean"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Registry holds the setting schemas the store validates against.
type Registry struct {
	mu       sync.RWMutex
	settings map[string]*Setting
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		settings: make(map[string]*Setting),
	}
}

// NewRegistryWithDefaults returns a registry preloaded with the built-in
// mongopilot settings.
func NewRegistryWithDefaults() *Registry {
	r := NewRegistry()
	r.RegisterDefaults()
	return r
}

// Register adds one schema, rejecting a path registered before.
func (r *Registry) Register(setting Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.settings[setting.Path]; exists {
		return fmt.Errorf("%w: %s", ErrSettingAlreadyRegistered, setting.Path)
	}
	r.settings[setting.Path] = &setting
	return nil
}

// MustRegister is Register for init-time use, panicking on a duplicate.
func (r *Registry) MustRegister(setting Setting) {
	if err := r.Register(setting); err != nil {
		panic(err)
	}
}

// Get returns the schema at path, nil when unregistered.
func (r *Registry) Get(path string) *Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[path]
}

// Has reports whether path is registered.
func (r *Registry) Has(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.settings[path]
	return exists
}

// All returns every schema ordered by path.
func (r *Registry) All() []*Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Setting, 0, len(r.settings))
	for _, s := range r.settings {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result
}

// Default returns the default at path, nil when unregistered.
func (r *Registry) Default(path string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.settings[path]; ok {
		return s.Default
	}
	return nil
}

// Defaults collects every non-nil default keyed by path.
func (r *Registry) Defaults() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]any, len(r.settings))
	for path, s := range r.settings {
		if s.Default != nil {
			result[path] = s.Default
		}
	}
	return result
}

// Validate checks value against the schema at path. Unknown paths pass, so
// extra sections in a config file are not an error.
func (r *Registry) Validate(path string, value any) error {
	r.mu.RLock()
	s, ok := r.settings[path]
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return s.Validate(value)
}

// MinValue returns a bound for Setting.Minimum.
func MinValue(v float64) *float64 {
	return &v
}

// MaxValue returns a bound for Setting.Maximum.
func MaxValue(v float64) *float64 {
	return &v
}

// RegisterDefaults registers all built-in mongopilot settings.
func (r *Registry) RegisterDefaults() {
	// Shell settings
	r.MustRegister(Setting{
		Path:        "shell.path",
		Type:        TypeString,
		Default:     "mongo",
		Description: "Path to the legacy mongo shell executable",
	})

	r.MustRegister(Setting{
		Path:        "shell.timeout",
		Type:        TypeFloat,
		Default:     5.0,
		Description: "Per-command timeout in seconds",
		Minimum:     MinValue(0.1),
		Maximum:     MaxValue(3600),
	})

	// Connection settings
	r.MustRegister(Setting{
		Path:        "connection.target",
		Type:        TypeString,
		Default:     "mongodb://localhost:27017",
		Description: "Connection string or host:port/db handed to the shell",
	})

	r.MustRegister(Setting{
		Path:        "connection.allowInvalidTLS",
		Type:        TypeBool,
		Default:     false,
		Description: "Accept self-signed TLS certificates",
	})

	// History settings
	r.MustRegister(Setting{
		Path:        "history.path",
		Type:        TypeString,
		Default:     "",
		Description: "History database file (empty disables history)",
	})

	r.MustRegister(Setting{
		Path:        "history.limit",
		Type:        TypeInt,
		Default:     1000,
		Description: "Maximum history entries kept when pruning",
		Minimum:     MinValue(0),
		Maximum:     MaxValue(1000000),
	})

	// REPL settings
	r.MustRegister(Setting{
		Path:        "repl.prompt",
		Type:        TypeString,
		Default:     "> ",
		Description: "Interactive prompt",
	})

	r.MustRegister(Setting{
		Path:        "repl.pretty",
		Type:        TypeBool,
		Default:     true,
		Description: "Pretty-print JSON results",
	})

	r.MustRegister(Setting{
		Path:        "repl.maxWidth",
		Type:        TypeInt,
		Default:     0,
		Description: "Truncate result lines to this display width (0 for no limit)",
		Minimum:     MinValue(0),
		Maximum:     MaxValue(1000),
	})

	// Logging settings
	r.MustRegister(Setting{
		Path:        "log.level",
		Type:        TypeEnum,
		Default:     "info",
		Description: "Logging verbosity level",
		Enum:        []any{"debug", "info", "warn", "error"},
	})

	r.MustRegister(Setting{
		Path:        "log.file",
		Type:        TypeString,
		Default:     "",
		Description: "Log file path (empty for stderr only)",
	})
}
