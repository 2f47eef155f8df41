package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Zereker/framing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSendCommand_Args(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mode = framing.ModeSync
	cfg.Codec = codecJSON
	cfg = startEcho(t, cfg, nil)

	out, err := execute(t, "", "send", "--addr", cfg.Addr, "--mode", "sync", "--codec", "json", "ping", "pong")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if out != "ping\npong\n" {
		t.Errorf("output = %q", out)
	}
}

func TestSendCommand_Stdin(t *testing.T) {
	cfg := startEcho(t, defaultConfig(), nil)

	out, err := execute(t, "first\nsecond\n", "send", "-a", cfg.Addr)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if out != "first\nsecond\n" {
		t.Errorf("output = %q", out)
	}
}

func TestSendCommand_ConfigFile(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mode = framing.ModeAsyncFramed
	cfg = startEcho(t, cfg, nil)

	path := writeConfig(t, `
addr = "`+cfg.Addr+`"
mode = "framed"
log_level = "error"
`)

	out, err := execute(t, "", "send", "--config", path, "a", "b")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if out != "a\n1\tb\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRootCommand_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad mode flag", []string{"send", "--mode", "bogus", "x"}},
		{"sync protobuf", []string{"send", "--mode", "sync", "x"}},
		{"bad log level", []string{"send", "--log-level", "loud", "x"}},
		{"empty addr", []string{"send", "--addr", "", "x"}},
		{"serve takes no args", []string{"serve", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, "", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRootCommand_FlagOverridesFile(t *testing.T) {
	cfg := startEcho(t, defaultConfig(), nil)

	// The file asks for json but the server speaks protobuf.
	path := writeConfig(t, `
addr = "`+cfg.Addr+`"
codec = "json"
`)

	out, err := execute(t, "", "send", "--config", path, "--codec", "protobuf", "x")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if out != "x\n" {
		t.Errorf("output = %q", out)
	}
}
