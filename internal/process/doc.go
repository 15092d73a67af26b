// Package process manages the interactive shell child processes that
// mongopilot spawns.
//
// The package implements a supervisor pattern so no spawned shell can
// outlive the application.
//
// # Starting a process
//
// Start wires the standard I/O pipes, starts the command, and tracks its
// exit:
//
//	cmd := exec.Command("mongo", "--quiet", target)
//	proc, err := process.Start("shell-1", "mongo", cmd)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	<-proc.Done()
//	fmt.Printf("shell exited with code %d\n", proc.ExitCode())
//
// A Process exposes the piped streams through Stdin, Stdout, and Stderr,
// reports its lifecycle through State, IsRunning, and HasExited, and can
// be signalled with Interrupt, Terminate, or Kill.
//
// # Supervisor
//
// The Supervisor tracks started processes and shuts them down together:
//
//	supervisor := process.NewSupervisor()
//	defer supervisor.Shutdown(3 * time.Second)
//
//	proc, err := supervisor.Start("mongo", cmd)
//
// Shutdown sends SIGTERM, waits up to the timeout, then SIGKILLs any
// process still running.
//
// Supervisor and Process are both safe for concurrent use.
package process
