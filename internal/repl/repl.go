// Package repl implements the interactive line-mode workbench. It reads
// scripts a line at a time, hands them to the shell session, and renders
// results; lines starting with a colon are meta commands handled locally.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/mongopilot/mongopilot/internal/config"
	"github.com/mongopilot/mongopilot/internal/history"
	"github.com/mongopilot/mongopilot/internal/logging"
	"github.com/mongopilot/mongopilot/internal/shell"
)

// ErrQuit is returned by Run when the user asks to leave with :quit.
var ErrQuit = errors.New("quit")

// Shell is the subset of the shell session the REPL drives.
type Shell interface {
	Execute(ctx context.Context, script string) (string, error)
	UseDatabase(ctx context.Context, name string) (string, error)
}

// HistoryStore records executed scripts. Satisfied by *history.Store.
type HistoryStore interface {
	Append(e *history.Entry) error
	Recent(n int) ([]history.Entry, error)
}

// defaultHistoryRows is how many entries :history shows without an argument.
const defaultHistoryRows = 20

// metaCommand is one colon command in the dispatch table.
type metaCommand struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, args []string) error
}

// REPL is the interactive loop. Build one with New and drive it with Run.
type REPL struct {
	shell Shell
	store *config.Store
	hist  HistoryStore
	log   *logging.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	ttySet bool

	target string
	db     string

	commands map[string]*metaCommand
	order    []string
}

// Option configures a REPL.
type Option func(*REPL)

// WithInput sets the input stream. Defaults to stdin.
func WithInput(in io.Reader) Option {
	return func(r *REPL) { r.in = in }
}

// WithOutput sets the result stream. Defaults to stdout.
func WithOutput(out io.Writer) Option {
	return func(r *REPL) { r.out = out }
}

// WithErrOutput sets the error stream. Defaults to stderr.
func WithErrOutput(out io.Writer) Option {
	return func(r *REPL) { r.errOut = out }
}

// WithLogger sets the REPL's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *REPL) { r.log = l }
}

// WithHistory enables script recording and the :history command.
func WithHistory(h HistoryStore) Option {
	return func(r *REPL) { r.hist = h }
}

// WithTarget sets the connection target shown in the prompt and recorded
// with history entries.
func WithTarget(target string) Option {
	return func(r *REPL) { r.target = target }
}

// WithDatabase sets the database name shown in the prompt until the first
// :use.
func WithDatabase(name string) Option {
	return func(r *REPL) { r.db = name }
}

// WithTTY overrides terminal detection. Tests drive the REPL through pipes
// but still need to exercise the interactive path.
func WithTTY(isTTY bool) Option {
	return func(r *REPL) {
		r.isTTY = isTTY
		r.ttySet = true
	}
}

// New creates a REPL bound to a shell session and the config store.
func New(sh Shell, store *config.Store, opts ...Option) *REPL {
	r := &REPL{
		shell:  sh,
		store:  store,
		log:    logging.NullLogger,
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
		db:     "test",
	}
	for _, opt := range opts {
		opt(r)
	}

	if !r.ttySet {
		if f, ok := r.in.(*os.File); ok {
			r.isTTY = term.IsTerminal(int(f.Fd()))
		}
	}

	r.registerCommands()
	return r
}

// Run reads and executes lines until EOF, :quit, or a read error. On a
// terminal it prints a prompt between lines; piped input runs in pipeline
// mode with plain output.
func (r *REPL) Run(ctx context.Context) error {
	if r.isTTY {
		r.printBanner()
	}

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.isTTY {
			fmt.Fprint(r.out, r.prompt())
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if r.isTTY {
				fmt.Fprintln(r.out)
			}
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if err := r.dispatch(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					return ErrQuit
				}
				fmt.Fprintf(r.errOut, "%v\n", err)
			}
			continue
		}

		r.execute(ctx, line)
	}
}

// execute runs one script line through the shell and renders the result.
func (r *REPL) execute(ctx context.Context, line string) {
	started := time.Now()
	out, err := r.shell.Execute(ctx, line)
	r.record(line, started, err)

	if err != nil {
		fmt.Fprintf(r.errOut, "%v\n", err)
		return
	}
	r.printResult(out)
}

// printResult writes a successful result. Server error documents go to the
// error stream so pipelines can separate them.
func (r *REPL) printResult(out string) {
	if out == "" {
		return
	}

	prettyOn := true
	if v, err := r.store.GetBool("repl.pretty"); err == nil {
		prettyOn = v
	}

	formatted := formatResult(out, prettyOn && r.isTTY, r.isTTY)
	if looksLikeJSON(out) && isErrorDocument(out) {
		fmt.Fprintln(r.errOut, formatted)
		return
	}
	fmt.Fprintln(r.out, formatted)
}

// record appends the script to history when recording is enabled.
func (r *REPL) record(script string, started time.Time, execErr error) {
	if r.hist == nil {
		return
	}

	entry := &history.Entry{
		Script:     script,
		Database:   r.db,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
		Status:     statusFor(execErr),
		Meta:       history.BuildMeta(r.target, execErr),
	}
	if err := r.hist.Append(entry); err != nil {
		r.log.Warn("history append failed: %v", err)
	}
}

// statusFor classifies an execution result for the history log.
func statusFor(err error) string {
	if err == nil {
		return history.StatusOK
	}
	var te *shell.TimeoutError
	if errors.As(err, &te) {
		return history.StatusTimeout
	}
	return history.StatusError
}

// prompt builds the `target/db> ` prompt.
func (r *REPL) prompt() string {
	suffix := "> "
	if v, err := r.store.GetString("repl.prompt"); err == nil && v != "" {
		suffix = v
	}

	host := shortTarget(r.target)
	switch {
	case host == "" && r.db == "":
		return suffix
	case host == "":
		return r.db + suffix
	default:
		return host + "/" + r.db + suffix
	}
}

// shortTarget reduces a connection string to its host part for the prompt.
func shortTarget(target string) string {
	t := strings.TrimPrefix(target, "mongodb://")
	t = strings.TrimPrefix(t, "mongodb+srv://")
	if at := strings.LastIndex(t, "@"); at >= 0 {
		t = t[at+1:]
	}
	if slash := strings.Index(t, "/"); slash >= 0 {
		t = t[:slash]
	}
	if q := strings.Index(t, "?"); q >= 0 {
		t = t[:q]
	}
	return t
}

func (r *REPL) printBanner() {
	if r.target != "" {
		fmt.Fprintf(r.out, "mongopilot connected to %s\n", shortTarget(r.target))
	}
	fmt.Fprintln(r.out, `Type :help for commands, :quit to leave.`)
}

// dispatch routes a colon command to its handler.
func (r *REPL) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], ":")
	args := fields[1:]

	cmd, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try :help", ":"+name)
	}
	return cmd.run(ctx, args)
}

// registerCommands builds the meta command table.
func (r *REPL) registerCommands() {
	r.commands = make(map[string]*metaCommand)

	register := func(c *metaCommand, aliases ...string) {
		r.commands[c.name] = c
		r.order = append(r.order, c.name)
		for _, a := range aliases {
			r.commands[a] = c
		}
	}

	register(&metaCommand{
		name:    "help",
		usage:   ":help",
		summary: "show this help",
		run:     r.cmdHelp,
	})
	register(&metaCommand{
		name:    "use",
		usage:   ":use <db>",
		summary: "switch the current database",
		run:     r.cmdUse,
	})
	register(&metaCommand{
		name:    "history",
		usage:   ":history [n]",
		summary: "list recently executed scripts",
		run:     r.cmdHistory,
	})
	register(&metaCommand{
		name:    "timeout",
		usage:   ":timeout [seconds]",
		summary: "show or set the shell timeout",
		run:     r.cmdTimeout,
	})
	register(&metaCommand{
		name:    "auth",
		usage:   ":auth <user>",
		summary: "authenticate against the current database",
		run:     r.cmdAuth,
	})
	register(&metaCommand{
		name:    "quit",
		usage:   ":quit",
		summary: "leave mongopilot",
		run:     r.cmdQuit,
	}, "q", "exit")
}

func (r *REPL) cmdHelp(context.Context, []string) error {
	for _, name := range r.order {
		c := r.commands[name]
		fmt.Fprintf(r.out, "%-22s %s\n", c.usage, c.summary)
	}
	return nil
}

func (r *REPL) cmdQuit(context.Context, []string) error {
	return ErrQuit
}

func (r *REPL) cmdUse(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: :use <db>")
	}

	out, err := r.shell.UseDatabase(ctx, args[0])
	if err != nil {
		return err
	}

	r.db = args[0]
	if out != "" {
		fmt.Fprintln(r.out, out)
	}
	return nil
}

func (r *REPL) cmdHistory(_ context.Context, args []string) error {
	if r.hist == nil {
		return errors.New("history is not enabled, set history.path in the config")
	}

	n := defaultHistoryRows
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("usage: :history [n], got %q", args[0])
		}
		n = v
	}

	entries, err := r.hist.Recent(n)
	if err != nil {
		return err
	}

	maxWidth := 0
	if v, err := r.store.GetInt("repl.maxWidth"); err == nil {
		maxWidth = v
	}
	fmt.Fprintln(r.out, formatHistory(entries, maxWidth))
	return nil
}

func (r *REPL) cmdTimeout(_ context.Context, args []string) error {
	if len(args) == 0 {
		secs, err := r.store.GetFloat("shell.timeout")
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "shell timeout is %g seconds\n", secs)
		return nil
	}

	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("usage: :timeout [seconds], got %q", args[0])
	}
	if err := r.store.Set("shell.timeout", secs); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "shell timeout set to %g seconds\n", secs)
	return nil
}

func (r *REPL) cmdAuth(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: :auth <user>")
	}
	if !r.isTTY {
		return errors.New(":auth needs a terminal to read the password")
	}

	user := args[0]
	fmt.Fprint(r.out, "Password: ")
	password, err := readPassword()
	fmt.Fprintln(r.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	script := fmt.Sprintf(`db.auth(%s, %s)`, quoteJS(user), quoteJS(password))
	started := time.Now()
	out, err := r.shell.Execute(ctx, script)

	// The recorded script must never contain the password.
	r.record(fmt.Sprintf(`db.auth(%s, "***")`, quoteJS(user)), started, err)
	if err != nil {
		return err
	}
	r.printResult(out)
	return nil
}

// readPassword reads a line from the terminal without echo.
var readPassword = func() (string, error) {
	b, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// quoteJS renders a string as a double-quoted shell literal.
func quoteJS(s string) string {
	q := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
	return `"` + q + `"`
}
