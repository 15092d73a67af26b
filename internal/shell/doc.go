// Package shell drives a legacy mongo shell process in line mode.
//
// The shell has no machine-readable protocol, so the session layer builds
// one out of its line-oriented echo behavior. Each command is written to
// the shell's stdin as two lines: the script, flattened to a single line,
// and a fresh sequence id. The shell evaluates the script, prints its
// output, then echoes the id on its own line. Output chunks read from
// stdout are buffered until one ends with the outstanding id's terminator
// line; the buffered chunks concatenated, minus the terminator, are the
// command's raw result.
//
// # Quick Start
//
// Spawn a shell and run a command:
//
//	session, err := shell.New(shell.Config{
//	    Path:   "mongo",
//	    Target: "mongodb://localhost:27017",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	out, err := session.Execute(ctx, "db.users.countDocuments()")
//
// # Completion Signals
//
// Exactly one signal resolves each command, whichever arrives first:
//
//   - Correlated output: the terminator line arrived, the cleaned output is
//     returned.
//   - Process exit: the shell exited before the terminator. A non-zero code
//     becomes *ExitError; a clean exit resolves to empty output.
//   - Stderr: diagnostic output becomes *StderrError immediately, without
//     buffering.
//   - Process failure: an unstartable or killed process becomes
//     *ProcessError.
//
// Late and duplicate signals are dropped. When no signal arrives within
// the command deadline, Execute returns *TimeoutError, unless a stdin
// write failed earlier, in which case the held *WriteError surfaces
// instead.
//
// # Timeouts
//
// The per-command deadline is read from the session's timeout source on
// every call, so configuration changes apply to the next command without
// restarting the shell. The source returns seconds; the default is
// DefaultTimeoutSeconds.
//
// # Thread Safety
//
// A Session is safe for concurrent use but strictly request/response: one
// command may be outstanding at a time, and concurrent Execute calls
// return ErrBusy.
package shell
