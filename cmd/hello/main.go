// hello reads and writes the hello register through the access stub.
//
// Usage:
//
//	hello [flags] get
//	hello [flags] set <value>
//	hello [flags] shell
//	hello [flags] info
//
// By default it talks to hellod over the node socket. With -direct it
// opens the device path as a real character device instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nerrad567/hello-hal/internal/hal"
	"github.com/nerrad567/hello-hal/internal/infrastructure/config"
	"github.com/nerrad567/hello-hal/internal/infrastructure/logging"
)

var version = "dev"

// errUsage marks a command line the user got wrong; usage is already printed.
var errUsage = errors.New("usage")

// options are the parsed global flags.
type options struct {
	socket string
	device string
	direct bool
	strict bool
	debug  bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run parses args and executes one command. A nil opener is chosen from
// the flags.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opener hal.Opener) error {
	fs := flag.NewFlagSet("hello", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.socket, "socket", hal.DefaultSocket, "hellod node socket")
	fs.StringVar(&opts.device, "device", hal.DefaultDevicePath, "device node path")
	fs.BoolVar(&opts.direct, "direct", false, "open the device path directly instead of via hellod")
	fs.BoolVar(&opts.strict, "strict", false, "treat short reads and writes as errors")
	fs.BoolVar(&opts.debug, "debug", false, "log every device operation to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: hello [flags] get | set <value> | shell | info")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	mod := newModule(opts, opener, stderr)
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	switch cmd {
	case "get":
		return cmdGet(ctx, mod, stdout)
	case "set":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: hello set <value>")
			return errUsage
		}
		return cmdSet(ctx, mod, rest[0])
	case "shell":
		return runShell(ctx, mod, stdout)
	case "info":
		fmt.Fprintln(stdout, mod.String())
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fs.Usage()
		return errUsage
	}
}

func newModule(opts options, opener hal.Opener, stderr io.Writer) *hal.Module {
	if opener == nil {
		if opts.direct {
			opener = hal.FileOpener{}
		} else {
			opener = hal.SocketOpener{Socket: opts.socket}
		}
	}

	halOpts := hal.Options{Strict: opts.strict}
	if opts.debug {
		halOpts.Logger = logging.NewWithWriter(stderr, config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		}, "hello", version)
	}

	mod := hal.NewModule(opener, halOpts)
	mod.DevicePath = opts.device
	return mod
}

func cmdGet(ctx context.Context, mod *hal.Module, stdout io.Writer) error {
	dev, err := mod.Open(ctx)
	if err != nil {
		return err
	}
	defer dev.Close() //nolint:errcheck // always nil

	v, err := dev.GetVal(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, v)
	return nil
}

func cmdSet(ctx context.Context, mod *hal.Module, arg string) error {
	v, err := parseValue(arg)
	if err != nil {
		return err
	}

	dev, err := mod.Open(ctx)
	if err != nil {
		return err
	}
	defer dev.Close() //nolint:errcheck // always nil

	return dev.SetVal(ctx, v)
}

// parseValue accepts any decimal that fits the 32-bit register.
func parseValue(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: must be a 32-bit integer", s)
	}
	return int32(v), nil
}
