package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/ws"
)

type pollOptions struct {
	interval    time.Duration
	send        []string
	maxMessages int
}

func newPollCmd(g *globalOptions, e *env) *cobra.Command {
	o := &pollOptions{}

	cmd := &cobra.Command{
		Use:   "poll <url>",
		Short: "Drain messages on a fixed tick",
		Long: `Connect in poll mode and check the connection on every tick, the way a game
or render loop would. Status changes and the messages drained on each tick are
printed.

Text given with --send is sent once the connection is open. When stdin is a
pipe, each line read from it is sent on the next tick.

Examples:
  poll ws://localhost:9001/ws --send ping
  poll ws://localhost:9001/ws --interval 16ms --max-messages 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd, g, e, o, args[0])
		},
	}

	cmd.Flags().DurationVar(&o.interval, "interval", 100*time.Millisecond, "Tick period")
	cmd.Flags().StringArrayVar(&o.send, "send", nil, "Text to send once connected (repeatable)")
	cmd.Flags().IntVar(&o.maxMessages, "max-messages", 0, "Close after this many messages, 0 to keep running")
	return cmd
}

func runPoll(cmd *cobra.Command, g *globalOptions, e *env, o *pollOptions, address string) error {
	if o.interval <= 0 {
		return errors.New("--interval must be positive")
	}

	opts, err := g.clientOptions()
	if err != nil {
		return err
	}

	sigCtx, stop := signalContext(cmd)
	defer stop()

	client, err := ws.NewPollingClient(address, opts...)
	if err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())

	var lines <-chan string
	if !e.stdinIsTerminal() {
		lines = readLines(e.stdin)
	}

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer cancel()
		return pollLoop(gctx, client, lines, o, p)
	})
	group.Go(func() error {
		<-gctx.Done()
		if err := client.Close(); err != nil {
			return err
		}
		waitDisconnected(client, o.interval, closeWait)
		p.printf("closed")
		return nil
	})
	return group.Wait()
}

// pollLoop runs until the connection ends, enough messages arrived or ctx is done.
func pollLoop(ctx context.Context, client *ws.PollingClient, lines <-chan string, o *pollOptions, p *printer) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	last := client.Status()
	p.printf("status %s", last)

	pending := append([]string(nil), o.send...)
	received := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			pending = append(pending, line)
			continue
		case <-ticker.C:
		}

		status := client.Status()
		if status != last {
			p.printf("status %s", status)
			last = status
		}

		if status == wsockets.StatusConnected && len(pending) > 0 {
			for _, text := range pending {
				if err := client.SendString(text); err != nil {
					p.printf("send failed: %v", err)
				}
			}
			pending = nil
		}

		for _, msg := range client.Receive() {
			p.printf("message %v", msg)
			received++
		}

		if o.maxMessages > 0 && received >= o.maxMessages {
			return nil
		}
		if status == wsockets.StatusDisconnected {
			return nil
		}
	}
}

// readLines feeds the lines of r into a channel that is closed when r ends.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// waitDisconnected polls the status until the close event arrived or timeout passed.
func waitDisconnected(client *ws.PollingClient, every, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for client.Status() != wsockets.StatusDisconnected && time.Now().Before(deadline) {
		time.Sleep(every)
	}
}
