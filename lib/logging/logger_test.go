package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"":        logger.WARNING,
		"error":   logger.ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := &toolLogger{name: "tool", level: logger.WARNING, logger: log.New(&buf, "", 0)}

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line must be filtered at warn level: %q", out)
	}
	if want := "WARN  | tool       | shown 2\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestInitSwitchesOutput(t *testing.T) {
	t.Cleanup(func() { _ = Init(os.Stderr, "warn") })

	var first, second bytes.Buffer
	l := logger.GetLogger("cli")

	if err := Init(&first, "info"); err != nil {
		t.Fatal(err)
	}
	l.Infof("to first")

	if err := Init(&second, "error"); err != nil {
		t.Fatal(err)
	}
	l.Warningf("filtered")
	l.Errorf("to second")

	if !strings.Contains(first.String(), "to first") || strings.Contains(first.String(), "to second") {
		t.Errorf("unexpected first output: %q", first.String())
	}
	if strings.Contains(second.String(), "filtered") || !strings.Contains(second.String(), "to second") {
		t.Errorf("unexpected second output: %q", second.String())
	}

	if err := Init(&second, "verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
