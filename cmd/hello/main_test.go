package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/hal"
)

func localOpener(t *testing.T) (hal.LocalOpener, *driver.Driver) {
	t.Helper()
	ns := driver.NewNamespace()
	d, err := driver.Attach(ns, driver.DefaultConfig())
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(d.Detach)
	return hal.LocalOpener{Namespace: ns}, d
}

func runCLI(t *testing.T, opener hal.Opener, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr, opener)
	return stdout.String(), stderr.String(), err
}

func TestRun_GetSet(t *testing.T) {
	opener, d := localOpener(t)

	out, _, err := runCLI(t, opener, "get")
	if err != nil || out != "0\n" {
		t.Fatalf("get = %q, %v; want 0", out, err)
	}

	if _, _, err := runCLI(t, opener, "-strict", "set", "-2147483648"); err != nil {
		t.Fatalf("set error = %v", err)
	}
	v, err := d.Store().Value(context.Background())
	if err != nil || v != -2147483648 {
		t.Errorf("register = %d, %v; want -2147483648", v, err)
	}

	out, _, err = runCLI(t, opener, "get")
	if err != nil || out != "-2147483648\n" {
		t.Errorf("get = %q, %v", out, err)
	}
}

func TestRun_Usage(t *testing.T) {
	opener, _ := localOpener(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frob"}},
		{"set without value", []string{"set"}},
		{"set with extra args", []string{"set", "1", "2"}},
		{"bad flag", []string{"-nope", "get"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := runCLI(t, opener, tt.args...)
			if !errors.Is(err, errUsage) {
				t.Errorf("err = %v, want errUsage", err)
			}
			if !strings.Contains(stderr, "Usage") && !strings.Contains(stderr, "flag provided") {
				t.Errorf("stderr = %q, want usage text", stderr)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	_, stderr, err := runCLI(t, nil, "-h")
	if err != nil {
		t.Errorf("-h error = %v", err)
	}
	if !strings.Contains(stderr, "-socket") {
		t.Errorf("help = %q, want flag listing", stderr)
	}
}

func TestRun_SetInvalidValue(t *testing.T) {
	opener, _ := localOpener(t)

	for _, arg := range []string{"abc", "2147483648", "1.5"} {
		if _, _, err := runCLI(t, opener, "set", arg); err == nil || errors.Is(err, errUsage) {
			t.Errorf("set %q error = %v, want invalid value", arg, err)
		}
	}
}

func TestRun_OpenFailure(t *testing.T) {
	opener, _ := localOpener(t)

	_, _, err := runCLI(t, opener, "-device", "/dev/missing", "get")
	if !hal.IsUnavailable(err) {
		t.Errorf("err = %v, want device unavailable", err)
	}
}

func TestRun_Info(t *testing.T) {
	out, _, err := runCLI(t, nil, "info")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	if out != "Hello 1.0 (hello) by momxmo\n" {
		t.Errorf("info = %q", out)
	}
}

func TestRun_DebugLogging(t *testing.T) {
	opener, _ := localOpener(t)

	_, stderr, err := runCLI(t, opener, "-debug", "get")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	if !strings.Contains(stderr, "op=open_device") {
		t.Errorf("stderr = %q, want open_device log", stderr)
	}
}

func TestNewModule_Openers(t *testing.T) {
	var buf bytes.Buffer

	mod := newModule(options{socket: "/tmp/h.sock", device: "/dev/reg"}, nil, &buf)
	if so, ok := mod.Opener.(hal.SocketOpener); !ok || so.Socket != "/tmp/h.sock" {
		t.Errorf("opener = %#v, want SocketOpener on /tmp/h.sock", mod.Opener)
	}
	if mod.DevicePath != "/dev/reg" {
		t.Errorf("DevicePath = %q, want /dev/reg", mod.DevicePath)
	}

	mod = newModule(options{direct: true}, nil, &buf)
	if _, ok := mod.Opener.(hal.FileOpener); !ok {
		t.Errorf("opener = %#v, want FileOpener", mod.Opener)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    int32
		wantErr bool
	}{
		{"0", 0, false},
		{"-1", -1, false},
		{"2147483647", 2147483647, false},
		{"2147483648", 0, true},
		{"12abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseValue(%q) = %d, %v; want %d, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
