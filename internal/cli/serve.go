package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsockets/ws"
)

type serveOptions struct {
	addr  string
	rate  float64
	burst int
}

func newServeCmd() *cobra.Command {
	o := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [--addr :9001]",
		Short: "Run a local echo server",
		Long: `Run a WebSocket server that sends every text and binary frame back to its
sender, on /ws. Useful to try the event and poll commands against.

Examples:
  serve
  serve --addr 127.0.0.1:8080
  serve --rate 10 --burst 20      # close peers sending more than 10 msg/s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o)
		},
	}

	cmd.Flags().StringVar(&o.addr, "addr", ":9001", "Listen address")
	cmd.Flags().Float64Var(&o.rate, "rate", 0, "Inbound messages per second per session, 0 for no limit")
	cmd.Flags().IntVar(&o.burst, "burst", 0, "Burst size for --rate, defaults to twice the rate")
	return cmd
}

func (o *serveOptions) serverConfig() ws.ServerConfig {
	limit := ws.NoRateLimit()
	if o.rate > 0 {
		burst := o.burst
		if burst <= 0 {
			burst = int(o.rate * 2)
		}
		if burst < 1 {
			burst = 1
		}
		limit = &ws.RateLimitConfig{
			MessagesPerSecond: rate.Limit(o.rate),
			Burst:             burst,
			Enabled:           true,
		}
	}

	return ws.NewServerConfig(o.addr, limit, ws.AllOrigins(),
		func(session *ws.EchoSession) {
			logs.Infof("session connected, id: %s, remote_addr: %s", session.ID(), session.RemoteAddr())
		},
		func(session *ws.EchoSession, voluntary bool) {
			logs.Infof("session disconnected, id: %s, voluntary: %v", session.ID(), voluntary)
		},
	)
}

func runServe(cmd *cobra.Command, o *serveOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	server := ws.NewEchoServer(o.serverConfig())

	group, gctx := errgroup.WithContext(ctx)
	if err := server.Start(gctx); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).printf("echo server listening on %s", server.URL())

	group.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(stopCtx)
	})
	return group.Wait()
}
