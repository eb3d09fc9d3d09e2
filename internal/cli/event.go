package cli

import (
	"bufio"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/ws"
)

type eventOptions struct {
	maxMessages int
}

func newEventCmd(g *globalOptions, e *env) *cobra.Command {
	o := &eventOptions{}

	cmd := &cobra.Command{
		Use:   "event <url> [messages...]",
		Short: "Print connection events as they arrive",
		Long: `Connect in event mode and print every event as it arrives.

The given messages are sent as text frames once the connection is open. When
stdin is a pipe, each line read from it is sent as a text frame as well.

Examples:
  event ws://localhost:9001/ws hello world
  event wss://echo.example.com --max-messages 1 ping
  tail -f log.txt | wsockets event ws://localhost:9001/ws`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, g, e, o, args)
		},
	}

	cmd.Flags().IntVar(&o.maxMessages, "max-messages", 0, "Close after this many messages, 0 to keep running")
	return cmd
}

func runEvent(cmd *cobra.Command, g *globalOptions, e *env, o *eventOptions, args []string) error {
	opts, err := g.clientOptions()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	p := newPrinter(cmd.OutOrStdout())
	connected := make(chan struct{})
	closed := make(chan struct{})
	received := 0

	opts = append(opts,
		ws.OnConnection(func(conn wsockets.Conn) {
			p.printf("connected %s", conn.URL())
			for _, text := range args[1:] {
				if err := conn.SendString(text); err != nil {
					p.printf("send failed: %v", err)
				}
			}
			close(connected)
		}),
		ws.OnMessage(func(conn wsockets.Conn, msg wsockets.Message) {
			p.printf("message %v", msg)
			received++
			if o.maxMessages > 0 && received >= o.maxMessages {
				conn.Close()
			}
		}),
		ws.OnError(func(err error) {
			p.printf("error %v", err)
		}),
		ws.OnClose(func() {
			p.printf("closed")
			close(closed)
		}),
	)

	client, err := ws.NewEventClient(args[0], opts...)
	if err != nil {
		return err
	}

	if !e.stdinIsTerminal() {
		go func() {
			select {
			case <-connected:
				sendLines(e.stdin, client, p)
			case <-closed:
			}
		}()
	}

	select {
	case <-closed:
		return nil
	case <-ctx.Done():
	}

	if err := client.Close(); err != nil {
		return err
	}
	select {
	case <-closed:
	case <-time.After(closeWait):
		p.printf("gave up waiting for close")
	}
	return nil
}

// sendLines sends every line of r as a text frame until r ends or a send fails.
func sendLines(r io.Reader, client wsockets.Conn, p *printer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := client.SendString(scanner.Text()); err != nil {
			p.printf("send failed: %v", err)
			return
		}
	}
}
