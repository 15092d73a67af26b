package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_DefaultOutput(t *testing.T) {
	l := New(Config{})
	if l == nil {
		t.Fatal("New() = nil")
	}
	if l.output == nil {
		t.Error("nil Output was not defaulted")
	}
}

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Prefix: "test"})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	for _, want := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]", "test:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	out := buf.String()
	for _, dropped := range []string{"[DEBUG]", "[INFO]"} {
		if strings.Contains(out, dropped) {
			t.Errorf("output contains %q below the configured level:\n%s", dropped, out)
		}
	}
	for _, kept := range []string{"[WARN]", "[ERROR]"} {
		if !strings.Contains(out, kept) {
			t.Errorf("output missing %q:\n%s", kept, out)
		}
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.Info("formatted %s %d", "test", 42)

	if out := buf.String(); !strings.Contains(out, "formatted test 42") {
		t.Errorf("output = %q, want the Sprintf expansion", out)
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.WithField("key", "value").Info("one")
	l.WithFields(map[string]any{"key1": "value1", "key2": 42}).Info("many")
	l.WithComponent("shell").Info("tagged")

	out := buf.String()
	for _, want := range []string{"key=value", "key1=value1", "key2=42", "component=shell"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.WithFields(map[string]any{"b": 2, "a": 1, "c": 3}).Info("ordered")

	if out := buf.String(); !strings.Contains(out, "{a=1, b=2, c=3}") {
		t.Errorf("output = %q, want fields in key order", out)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelError, Output: &buf})

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line written at error level: %q", buf.String())
	}

	l.SetLevel(LevelInfo)
	l.Info("written")
	if buf.Len() == 0 {
		t.Error("no output after lowering the level")
	}
}

func TestLogger_SetOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &first})

	l.Info("to first")
	l.SetOutput(&second)
	l.Info("to second")

	if first.Len() == 0 {
		t.Error("nothing reached the original output")
	}
	if second.Len() == 0 {
		t.Error("nothing reached the new output")
	}
}

func TestLogger_DisableEnable(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.Disable()
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("line written while disabled: %q", buf.String())
	}

	l.Enable()
	l.Info("written")
	if buf.Len() == 0 {
		t.Error("no output after Enable")
	}
}

func TestNullLogger(t *testing.T) {
	NullLogger.Debug("dropped")
	NullLogger.Info("dropped")
	NullLogger.Warn("dropped")
	NullLogger.Error("dropped")
}

func TestDefault(t *testing.T) {
	first := Default()
	if first == nil {
		t.Fatal("Default() = nil")
	}
	if second := Default(); second != first {
		t.Error("Default() returned a different instance on the second call")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %v, want %v", cfg.Level, LevelInfo)
	}
	if cfg.Output == nil {
		t.Error("Output = nil")
	}
	if cfg.Prefix != "mongopilot" {
		t.Errorf("Prefix = %q, want %q", cfg.Prefix, "mongopilot")
	}
}
