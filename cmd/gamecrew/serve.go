package main

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danshapiro/gamecrew/internal/events"
	"github.com/danshapiro/gamecrew/internal/server"
	"github.com/danshapiro/gamecrew/web"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API and the browser UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	cmd.Flags().Bool("static", true, "Serve the embedded UI")
	bindFlags(a.v, cmd.Flags(), map[string]string{
		"server.addr":   "addr",
		"server.static": "static",
	})
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := a.cfg

	bus, err := events.NewBus(events.WithZerolog(log.Logger))
	if err != nil {
		return err
	}
	broadcaster := server.NewBroadcaster(cfg.Server.EventReplay)
	bus.AddHandler("turn-log", events.TopicTurns, events.LogHandler(log.Logger))
	bus.AddHandler("turn-sse", events.TopicTurns, forwardTo(broadcaster))

	srvCfg := server.Config{
		Addr:        cfg.Server.Addr,
		Model:       cfg.Model.Name,
		Provider:    providerName(cfg.Model.Transport),
		StaticGlobs: cfg.Server.StaticGlobs,
	}
	opts := []server.Option{server.WithEvents(broadcaster)}
	if cfg.Server.Static {
		opts = append(opts, server.WithStatic(web.Static()))
	}

	var turns server.TurnHandler
	if credErr := cfg.CredentialError(); credErr != nil {
		log.Warn().Err(credErr).Msg("starting without credentials; chat requests will fail")
		opts = append(opts, server.WithCredentialError(credErr))
	} else {
		st, err := buildStack(ctx, cfg, bus.Sink())
		if err != nil {
			return err
		}
		defer st.close()
		turns = st.controller
	}

	srv, err := server.New(srvCfg, turns, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Run(gctx)
	})
	g.Go(func() error {
		// Handlers must be subscribed before the first turn is published.
		select {
		case <-bus.Running():
		case <-gctx.Done():
			return nil
		}
		defer cancel()
		return srv.ListenAndServe(gctx)
	})
	err = g.Wait()
	if cerr := bus.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// forwardTo relays bus events to SSE subscribers.
func forwardTo(b *server.Broadcaster) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		e, err := events.DecodeTurn(msg)
		if err != nil {
			// Malformed events would be redelivered forever.
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("drop turn event")
			return nil
		}
		b.Send(e)
		return nil
	}
}
