// Package config provides the mongopilot configuration system.
//
// Configuration is merged from four sources in increasing priority:
// built-in defaults from the settings registry, a config file (TOML or
// YAML), MONGOPILOT_-prefixed environment variables, and runtime overrides
// set through the Store.
//
// # Quick Start
//
//	store := config.NewStore()
//	if err := store.Load(); err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	path, _ := store.GetString("shell.path")
//	timeout, _ := store.GetFloat("shell.timeout")
//
// # Live Reload
//
// When live reload is enabled and a config file exists, the file is
// watched through fsnotify and re-read after changes settle. Reads always
// consult the current merged state, so components that read a setting per
// operation pick up changes without restarting. Observers can also
// subscribe to change notifications:
//
//	store.SubscribePath("shell", func(c config.Change) {
//	    // react to shell.* changes
//	})
//
// # Settings Registry
//
// The registry defines every built-in setting with its type, default, and
// validation rules. Runtime overrides are validated against it; unknown
// paths in a config file are kept but never validated, so extra sections
// are not an error.
package config
