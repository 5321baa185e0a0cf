package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/bot"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/config"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/dialog"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/audit"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/db"
	httpx "github.com/fpuinvestiga/gatekeeper-bot/internal/infra/http"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/logger"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/metrics"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/verify"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context(), cfg)
		},
	}
}

func serveRun(ctx context.Context, c config.Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.New(c.App.Env)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	matcher, err := openRoster(ctx, c, roster.WithObserver(m))
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	log.Info("roster ready", "source", c.Roster.Source, "previous", matcher.Has(roster.Previous))

	api, err := tgbotapi.NewBotAPI(c.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Info("authorized on telegram", "bot", api.Self.UserName)

	engineOpts := []verify.Option{
		verify.WithLogger(log.With("component", "verify")),
		verify.WithMetrics(m),
		verify.WithCommunity(c.App.Name),
	}
	botOpts := []bot.Option{
		bot.WithLogger(log.With("component", "bot")),
		bot.WithCommunity(c.App.Name),
	}

	if c.Postgres.DSN != "" {
		if err := db.Migrate(ctx, c.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := db.Connect(ctx, c.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()
		repo := audit.NewRepo(pool)
		engineOpts = append(engineOpts, verify.WithAuditLog(repo))
		botOpts = append(botOpts, bot.WithHistory(repo))
		log.Info("audit log enabled")
	}

	gw := bot.NewGateway(api, c.Telegram.AdminChatID)
	engine, err := verify.New(matcher, gw, gw, dialog.NewRegistry(), engineOpts...)
	if err != nil {
		return err
	}
	b, err := bot.New(api, engine, matcher, c.Telegram.AdminChatID, botOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var httpOpts []httpx.Option
	if c.Metrics.Enabled {
		httpOpts = append(httpOpts, httpx.WithMetrics(reg))
	}
	if c.WebhookMode() {
		httpOpts = append(httpOpts, httpx.WithWebhook(c.Telegram.WebhookPath, b.WebhookHandler(gctx, api)))
		if err := bot.SetWebhook(api, c.Telegram.WebhookURL); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		log.Info("receiving updates by webhook", "path", c.Telegram.WebhookPath)
	} else {
		updates, err := bot.Poll(api, c.Telegram.PollTimeout)
		if err != nil {
			return fmt.Errorf("start polling: %w", err)
		}
		log.Info("receiving updates by long polling")
		g.Go(func() error {
			defer api.StopReceivingUpdates()
			return b.Run(gctx, updates)
		})
	}

	srv := httpx.New(c.HTTP.Addr, httpOpts...)
	g.Go(func() error {
		log.Info("HTTP server started", "addr", c.HTTP.Addr)
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		drain := func() {}
		if c.WebhookMode() {
			drain = b.Wait
		}
		return shutdownServer(shutdownCtx, srv, drain)
	})

	g.Go(func() error {
		sweepSessions(gctx, log, engine, c.Sessions.TTL, c.Sessions.SweepInterval)
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("graceful shutdown complete")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownServer stops the HTTP server, then runs drain. Webhook handlers can
// dispatch updates until Shutdown returns, so drain must come after it.
func shutdownServer(ctx context.Context, srv shutdowner, drain func()) error {
	err := srv.Shutdown(ctx)
	drain()
	return err
}

func sweepSessions(ctx context.Context, log *slog.Logger, engine *verify.Engine, ttl, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := engine.ExpireSessions(ctx, ttl); n > 0 {
				log.Info("expired sessions", "count", n, "pending", engine.Pending())
			}
		}
	}
}
