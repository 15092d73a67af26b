package process

import (
	"os/exec"
	"sync"
	"testing"
	"time"
)

func TestNewSupervisor(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	if s == nil {
		t.Fatal("NewSupervisor() = nil")
	}
	if n := s.Count(); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true on a fresh supervisor")
	}
}

func TestSupervisor_WithMaxProcesses(t *testing.T) {
	s := NewSupervisor(WithMaxProcesses(2))
	defer s.Shutdown(time.Second)

	for _, name := range []string{"one", "two"} {
		proc, err := s.Start(name, exec.Command("sleep", "10"))
		if err != nil {
			t.Fatalf("Start(%q) error = %v", name, err)
		}
		defer proc.Kill()
	}

	if _, err := s.Start("three", exec.Command("sleep", "10")); err == nil {
		t.Error("Start() beyond the limit succeeded, want error")
	}
}

func TestSupervisor_WithProcessExitCallback(t *testing.T) {
	exited := make(chan *Process, 1)
	s := NewSupervisor(WithProcessExitCallback(func(p *Process) {
		exited <- p
	}))
	defer s.Shutdown(time.Second)

	proc, err := s.Start("short", exec.Command("echo", "hello"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case p := <-exited:
		if p.ID != proc.ID {
			t.Errorf("callback got process %q, want %q", p.ID, proc.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exit callback never fired")
	}
}

func TestSupervisor_Start(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	proc, err := s.Start("short", exec.Command("echo", "hello"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if proc.ID == "" {
		t.Error("Start() assigned no ID")
	}
	if proc.Name != "short" {
		t.Errorf("Name = %q, want %q", proc.Name, "short")
	}
	if n := s.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	<-proc.Done()

	// The watcher untracks the process shortly after the exit.
	time.Sleep(50 * time.Millisecond)
	if n := s.Count(); n != 0 {
		t.Errorf("Count() after exit = %d, want 0", n)
	}
}

func TestSupervisor_StartWithID(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	proc, err := s.StartWithID("session-1", "short", exec.Command("echo", "hello"))
	if err != nil {
		t.Fatalf("StartWithID() error = %v", err)
	}
	if proc.ID != "session-1" {
		t.Errorf("ID = %q, want %q", proc.ID, "session-1")
	}

	<-proc.Done()
}

func TestSupervisor_StartWithID_Duplicate(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	proc, err := s.StartWithID("session-1", "first", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("StartWithID() error = %v", err)
	}
	defer proc.Kill()

	if _, err := s.StartWithID("session-1", "second", exec.Command("sleep", "10")); err == nil {
		t.Error("StartWithID() with a taken ID succeeded, want error")
	}
}

func TestSupervisor_Get(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	proc, err := s.StartWithID("session-1", "sleeper", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("StartWithID() error = %v", err)
	}
	defer proc.Kill()

	got := s.Get("session-1")
	if got == nil {
		t.Fatal("Get() = nil for a tracked process")
	}
	if got.ID != "session-1" {
		t.Errorf("Get() returned ID %q, want %q", got.ID, "session-1")
	}

	if got := s.Get("no-such-id"); got != nil {
		t.Errorf("Get() for unknown ID = %v, want nil", got)
	}
}

func TestSupervisor_List(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	a, _ := s.Start("a", exec.Command("sleep", "10"))
	b, _ := s.Start("b", exec.Command("sleep", "10"))
	defer a.Kill()
	defer b.Kill()

	if got := len(s.List()); got != 2 {
		t.Errorf("len(List()) = %d, want 2", got)
	}
}

func TestSupervisor_KillAll(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	a, _ := s.Start("a", exec.Command("sleep", "10"))
	b, _ := s.Start("b", exec.Command("sleep", "10"))

	time.Sleep(50 * time.Millisecond)
	s.KillAll()

	for _, proc := range []*Process{a, b} {
		select {
		case <-proc.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("process %q survived KillAll", proc.Name)
		}
	}
}

func TestSupervisor_Shutdown(t *testing.T) {
	s := NewSupervisor()

	a, _ := s.Start("a", exec.Command("sleep", "10"))
	b, _ := s.Start("b", exec.Command("sleep", "10"))

	time.Sleep(50 * time.Millisecond)
	s.Shutdown(2 * time.Second)

	for _, proc := range []*Process{a, b} {
		select {
		case <-proc.Done():
		default:
			t.Errorf("process %q still running after Shutdown", proc.Name)
		}
	}

	if !s.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Shutdown")
	}
}

func TestSupervisor_Shutdown_Timeout(t *testing.T) {
	s := NewSupervisor()

	// This child ignores SIGTERM, so Shutdown has to escalate to SIGKILL
	// after the timeout.
	proc, _ := s.Start("stubborn", exec.Command("sh", "-c", "trap '' TERM; sleep 60"))
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	s.Shutdown(500 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed < 400*time.Millisecond {
		t.Errorf("Shutdown returned after %v, before the grace period", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v, expected roughly the timeout", elapsed)
	}

	select {
	case <-proc.Done():
	default:
		t.Error("stubborn child still running after Shutdown")
	}
}

func TestSupervisor_Shutdown_Idempotent(t *testing.T) {
	s := NewSupervisor()

	s.Shutdown(time.Second)
	s.Shutdown(time.Second)
	s.Shutdown(time.Second)
}

func TestSupervisor_StartAfterShutdown(t *testing.T) {
	s := NewSupervisor()
	s.Shutdown(time.Second)

	if _, err := s.Start("late", exec.Command("echo", "hello")); err != ErrSupervisorShutdown {
		t.Errorf("Start() after Shutdown error = %v, want ErrSupervisorShutdown", err)
	}
}

func TestSupervisor_ShutdownChan(t *testing.T) {
	s := NewSupervisor()

	select {
	case <-s.ShutdownChan():
		t.Error("ShutdownChan() closed before Shutdown")
	default:
	}

	s.Shutdown(time.Second)

	select {
	case <-s.ShutdownChan():
	default:
		t.Error("ShutdownChan() still open after Shutdown")
	}
}

func TestSupervisor_Concurrent(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	var wg sync.WaitGroup
	errCh := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc, err := s.Start("worker", exec.Command("echo", "hello"))
			if err != nil {
				errCh <- err
				return
			}
			<-proc.Done()
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Start() error = %v", err)
	}
}

func TestSupervisor_ProcessIO(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	proc, err := s.Start("echo", exec.Command("echo", "hello world"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if proc.Stdout() == nil {
		t.Fatal("Stdout() = nil, want a pipe")
	}

	buf := make([]byte, 1024)
	n, err := proc.Stdout().Read(buf)
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if got := string(buf[:n]); got != "hello world\n" {
		t.Errorf("stdout = %q, want %q", got, "hello world\n")
	}

	<-proc.Done()
}
