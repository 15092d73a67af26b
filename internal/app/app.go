// Package app wires the mongopilot components together and manages their
// lifecycle: configuration, logging, history, the supervised shell session,
// and whichever front end the invocation asks for (eval, Lua scripts, or
// the interactive REPL).
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mongopilot/mongopilot/internal/config"
	"github.com/mongopilot/mongopilot/internal/history"
	"github.com/mongopilot/mongopilot/internal/logging"
	"github.com/mongopilot/mongopilot/internal/process"
	"github.com/mongopilot/mongopilot/internal/repl"
	"github.com/mongopilot/mongopilot/internal/script"
	"github.com/mongopilot/mongopilot/internal/shell"
)

// supervisorShutdownTimeout bounds how long Shutdown waits for shell
// processes to exit after SIGTERM before killing them.
const supervisorShutdownTimeout = 3 * time.Second

// Options configures the application. Zero values fall back to the config
// store and sensible defaults.
type Options struct {
	// ConfigPath is an explicit config file. Empty searches the default
	// config directory.
	ConfigPath string

	// Target overrides the connection.target setting.
	Target string

	// Eval is a script to execute instead of starting the REPL.
	Eval string

	// ScriptFiles are Lua files to run instead of starting the REPL.
	ScriptFiles []string

	// Insecure allows invalid TLS certificates regardless of config.
	Insecure bool

	// LogLevel overrides the log.level setting.
	LogLevel string

	// Debug forces debug-level logging.
	Debug bool

	// Stdin, Stdout, and Stderr override the process streams. Tests drive
	// the application through buffers; zero values mean the os defaults.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Application is the composition root. Build one with New, drive it with
// Run, and always call Shutdown.
type Application struct {
	opts Options

	store   *config.Store
	log     *logging.Logger
	logFile *os.File
	hist    *history.Store
	sup     *process.Supervisor

	mu      sync.Mutex
	session *shell.Session

	running  atomic.Bool
	shutOnce sync.Once
}

// New creates an Application: it loads configuration, sets up logging, opens
// the history store, and prepares the process supervisor. The shell itself
// is not spawned until Run.
func New(opts Options) (*Application, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	a := &Application{opts: opts}

	var storeOpts []config.StoreOption
	if opts.ConfigPath != "" {
		storeOpts = append(storeOpts, config.WithFile(opts.ConfigPath))
	}
	a.store = config.NewStore(storeOpts...)
	if err := a.store.Load(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	if err := a.setupLogging(); err != nil {
		a.store.Close()
		return nil, &InitError{Component: "logging", Err: err}
	}

	a.setupHistory()
	a.sup = process.NewSupervisor(
		process.WithSupervisorLogger(a.log.WithComponent("process")),
		process.WithProcessExitCallback(func(p *process.Process) {
			a.log.Debug("shell process %s exited with code %d", p.ID, p.ExitCode())
		}),
	)

	a.store.Subscribe(func(c config.Change) {
		a.log.Debug("config change: %s (%s)", c.Path, c.Type)
	})

	if path := a.store.FilePath(); path != "" {
		a.log.Debug("configuration loaded from %s", path)
	}
	return a, nil
}

// setupLogging builds the application logger from flags and config.
func (a *Application) setupLogging() error {
	cfg := logging.DefaultConfig()
	cfg.Output = a.opts.Stderr

	levelName, _ := a.store.GetString("log.level")
	if a.opts.LogLevel != "" {
		levelName = a.opts.LogLevel
	}
	cfg.Level = logging.ParseLevel(levelName)
	if a.opts.Debug {
		cfg.Level = logging.LevelDebug
	}

	if path, _ := a.store.GetString("log.file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", path, err)
		}
		a.logFile = f
		cfg.Output = f
	}

	a.log = logging.New(cfg)
	logging.SetDefault(a.log)
	return nil
}

// setupHistory opens the history store when history.path is configured.
// History is a convenience, so failures log a warning instead of aborting
// startup.
func (a *Application) setupHistory() {
	path, _ := a.store.GetString("history.path")
	if path == "" {
		return
	}

	h, err := history.Open(path, history.WithLogger(a.log.WithComponent("history")))
	if err != nil {
		a.log.Warn("history disabled: %v", err)
		return
	}
	a.hist = h

	if limit, err := a.store.GetInt("history.limit"); err == nil && limit > 0 {
		if _, err := h.Prune(limit); err != nil {
			a.log.Warn("history prune failed: %v", err)
		}
	}
}

// shellConfig resolves the shell spawn configuration from flags and config.
func (a *Application) shellConfig() shell.Config {
	cfg := shell.Config{}
	cfg.Path, _ = a.store.GetString("shell.path")
	cfg.Target, _ = a.store.GetString("connection.target")
	cfg.AllowInvalidTLS, _ = a.store.GetBool("connection.allowInvalidTLS")

	if a.opts.Target != "" {
		cfg.Target = a.opts.Target
	}
	if a.opts.Insecure {
		cfg.AllowInvalidTLS = true
	}
	return cfg
}

// Run spawns the shell session and hands control to eval, script, or REPL
// mode. It blocks until the mode finishes; a :quit from the REPL surfaces
// as ErrQuit.
func (a *Application) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	cfg := a.shellConfig()
	session, err := shell.New(cfg,
		shell.WithLogger(a.log.WithComponent("shell")),
		shell.WithSupervisor(a.sup),
		shell.WithTimeoutSource(func() float64 {
			secs, err := a.store.GetFloat("shell.timeout")
			if err != nil {
				return shell.DefaultTimeoutSeconds
			}
			return secs
		}),
	)
	if err != nil {
		return &InitError{Component: "shell", Err: err}
	}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	defer session.Close()

	switch {
	case a.opts.Eval != "":
		return a.runEval(ctx, session)
	case len(a.opts.ScriptFiles) > 0:
		return a.runScripts(ctx, session)
	default:
		return a.runREPL(ctx, session, cfg.Target)
	}
}

// runEval executes a single script and prints its output.
func (a *Application) runEval(ctx context.Context, session *shell.Session) error {
	started := time.Now()
	out, err := session.Execute(ctx, a.opts.Eval)
	a.record(a.opts.Eval, started, err)

	if err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintln(a.opts.Stdout, out)
	}
	return nil
}

// runScripts runs each Lua file in order, stopping at the first failure.
func (a *Application) runScripts(ctx context.Context, session *shell.Session) error {
	eng := script.New(session,
		script.WithLogger(a.log.WithComponent("script")),
		script.WithDatabase("test"),
	)
	defer eng.Close()

	for _, path := range a.opts.ScriptFiles {
		if err := eng.RunFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// runREPL starts the interactive loop.
func (a *Application) runREPL(ctx context.Context, session *shell.Session, target string) error {
	replOpts := []repl.Option{
		repl.WithLogger(a.log.WithComponent("repl")),
		repl.WithTarget(target),
		repl.WithInput(a.opts.Stdin),
		repl.WithOutput(a.opts.Stdout),
		repl.WithErrOutput(a.opts.Stderr),
	}
	if a.hist != nil {
		replOpts = append(replOpts, repl.WithHistory(a.hist))
	}

	return repl.New(session, a.store, replOpts...).Run(ctx)
}

// record appends non-interactive executions to history, matching what the
// REPL records for interactive ones.
func (a *Application) record(scriptText string, started time.Time, execErr error) {
	if a.hist == nil {
		return
	}

	status := history.StatusOK
	if execErr != nil {
		status = history.StatusError
	}
	err := a.hist.Append(&history.Entry{
		Script:     scriptText,
		Database:   "test",
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
		Status:     status,
		Meta:       history.BuildMeta(a.shellConfig().Target, execErr),
	})
	if err != nil {
		a.log.Warn("history append failed: %v", err)
	}
}

// Shutdown releases everything New and Run acquired: the shell session, the
// supervised processes, the history store, and the config watcher. Safe to
// call more than once and from a signal handler.
func (a *Application) Shutdown() {
	a.shutOnce.Do(func() {
		a.mu.Lock()
		session := a.session
		a.mu.Unlock()

		if session != nil {
			_ = session.Close()
		}
		if a.sup != nil {
			a.sup.Shutdown(supervisorShutdownTimeout)
		}
		if a.hist != nil {
			if err := a.hist.Close(); err != nil {
				a.log.Warn("history close failed: %v", err)
			}
		}
		if a.store != nil {
			a.store.Close()
		}
		if a.logFile != nil {
			_ = a.logFile.Close()
		}
	})
}

// IsRunning reports whether Run is active.
func (a *Application) IsRunning() bool {
	return a.running.Load()
}

// Store exposes the configuration store, mainly for tests.
func (a *Application) Store() *config.Store {
	return a.store
}
