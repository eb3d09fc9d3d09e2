// Package cli implements the wsockets command line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/ws"
)

// Version is set at build time.
var Version = "dev"

// closeWait bounds how long a command waits for the close event after an interrupt.
const closeWait = 2 * time.Second

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	provider       string
	maxMessageSize int64
}

// env is where commands read input from. Tests replace it.
type env struct {
	stdin           io.Reader
	stdinIsTerminal func() bool
}

func defaultEnv() *env {
	return &env{
		stdin: os.Stdin,
		stdinIsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultEnv())
}

func newRootCmd(e *env) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "wsockets",
		Short:         "WebSocket client with event and poll modes",
		Long:          "wsockets connects to a WebSocket server and prints what happens, either as events arrive or on a fixed tick. It can also run a local echo server to try clients against.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.provider, "provider", "gorilla", "Socket implementation: gorilla, coder or gobwas")
	root.PersistentFlags().Int64Var(&opts.maxMessageSize, "max-message-size", ws.DefaultMaxMessageSize, "Largest inbound message in bytes, 0 for no limit")

	root.AddCommand(
		newEventCmd(opts, e),
		newPollCmd(opts, e),
		newServeCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newProvider maps a --provider value to a provider.
func newProvider(name string) (wsockets.Provider, error) {
	switch strings.ToLower(name) {
	case "", "gorilla":
		return ws.NewGorillaProvider(nil), nil
	case "coder":
		return ws.NewCoderProvider(nil), nil
	case "gobwas":
		return ws.NewGobwasProvider(nil), nil
	default:
		return nil, fmt.Errorf("unknown provider %q, want gorilla, coder or gobwas", name)
	}
}

func (o *globalOptions) clientOptions() ([]ws.Option, error) {
	provider, err := newProvider(o.provider)
	if err != nil {
		return nil, err
	}
	return []ws.Option{
		ws.WithProvider(provider),
		ws.WithMaxMessageSize(o.maxMessageSize),
	}, nil
}

// signalContext is cancelled on interrupt or termination.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// printer serializes output from callbacks and loops.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}
