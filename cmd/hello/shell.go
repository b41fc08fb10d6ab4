package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/nerrad567/hello-hal/internal/hal"
)

// shell is an interactive session holding one open device.
type shell struct {
	dev *hal.Device
	out io.Writer
}

func runShell(ctx context.Context, mod *hal.Module, stdout io.Writer) error {
	dev, err := mod.Open(ctx)
	if err != nil {
		return err
	}
	defer dev.Close() //nolint:errcheck // always nil

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hello> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close() //nolint:errcheck // terminal restore only

	sh := &shell{dev: dev, out: rl.Stdout()}
	fmt.Fprintf(sh.out, "%s on %s\n", mod.String(), dev.Path())
	sh.printHelp()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		if !sh.exec(ctx, line) {
			return nil
		}
	}
}

// exec runs one command line and reports whether the shell should go on.
func (s *shell) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "get", "g":
		s.cmdGet(ctx)
	case "set", "s":
		s.cmdSet(ctx, args)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  get          - read the register
  set <value>  - write the register
  help         - show this help
  quit         - leave the shell`)
}

func (s *shell) cmdGet(ctx context.Context) {
	v, err := s.dev.GetVal(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, v)
}

func (s *shell) cmdSet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: set <value>")
		return
	}
	v, err := parseValue(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if err := s.dev.SetVal(ctx, v); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "OK")
}
