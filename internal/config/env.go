package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix for mongopilot environment variables.
const EnvPrefix = "MONGOPILOT_"

// EnvLoader reads settings from the environment. Variables either match an
// explicit mapping or are converted generically, MONGOPILOT_REPL_MAX_WIDTH
// becoming repl.maxWidth.
type EnvLoader struct {
	prefix  string
	mapping map[string]string // variable name to setting path
}

// NewEnvLoader builds a loader for variables carrying prefix, which must
// include the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(),
	}
}

// defaultEnvMapping covers the names generic conversion cannot produce,
// mostly paths with acronyms, plus a few shortened spellings.
func defaultEnvMapping() map[string]string {
	return map[string]string{
		"MONGOPILOT_SHELL_PATH":        "shell.path",
		"MONGOPILOT_SHELL_TIMEOUT":     "shell.timeout",
		"MONGOPILOT_TARGET":            "connection.target",
		"MONGOPILOT_ALLOW_INVALID_TLS": "connection.allowInvalidTLS",
		"MONGOPILOT_HISTORY_PATH":      "history.path",
		"MONGOPILOT_HISTORY_LIMIT":     "history.limit",
		"MONGOPILOT_LOG_LEVEL":         "log.level",
		"MONGOPILOT_LOG_FILE":          "log.file",
	}
}

// AddMapping binds an extra variable name to a setting path.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// Load collects the mapped and prefixed variables into a nested settings
// map. A variable set to the empty string counts as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	settings := make(map[string]any)

	for name, path := range l.mapping {
		if raw, ok := os.LookupEnv(name); ok {
			_ = setByPath(settings, path, parseEnvValue(raw))
		}
	}

	// Prefixed variables without a mapping convert generically. Mapped
	// ones were handled above and are skipped here so the mapping wins.
	for _, kv := range os.Environ() {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if _, mapped := l.mapping[name]; mapped {
			continue
		}
		_ = setByPath(settings, l.envToPath(name), parseEnvValue(raw))
	}

	return settings, nil
}

// envToPath derives a setting path from a variable name. The segment after
// the prefix is the section; the rest joins camel-cased, so
// MONGOPILOT_REPL_MAX_WIDTH maps to repl.maxWidth.
func (l *EnvLoader) envToPath(env string) string {
	trimmed := strings.TrimPrefix(env, l.prefix)

	section, rest, ok := strings.Cut(trimmed, "_")
	if !ok {
		return strings.ToLower(trimmed)
	}
	return strings.ToLower(section) + "." + camelCase(rest)
}

// camelCase turns MAX_WIDTH into maxWidth.
func camelCase(s string) string {
	var b strings.Builder
	for i, word := range strings.Split(s, "_") {
		if word == "" {
			continue
		}
		if i == 0 {
			b.WriteString(strings.ToLower(word))
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(strings.ToLower(word[1:]))
	}
	return b.String()
}

// parseEnvValue guesses a concrete type for an environment value. Integers
// are tried before the boolean words so "1" stays numeric; floats need a
// decimal point so version-like strings pass through unchanged.
func parseEnvValue(s string) any {
	if s == "" {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	return s
}
