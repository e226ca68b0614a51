package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/delivery"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/engine"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/health"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/httpapi"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/ratelimit"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/session"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/storage"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and bot runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := strings.TrimSpace(viper.GetString("telegram.token"))
			if token == "" {
				return fmt.Errorf("missing telegram.token (set via QUIZBOT_TELEGRAM_TOKEN)")
			}

			store, err := storage.Open(viper.GetString("storage.path"))
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			client, err := telegram.New(telegram.Options{
				Token:   token,
				BaseURL: viper.GetString("telegram.base_url"),
			})
			if err != nil {
				return err
			}

			counters := health.NewCounters()

			sender, err := delivery.New(delivery.Options{
				Transport:     client,
				Counters:      counters,
				Logger:        logger,
				MaxAttempts:   viper.GetInt("delivery.max_attempts"),
				BaseDelay:     viper.GetDuration("delivery.base_delay"),
				RetryAfterCap: viper.GetDuration("delivery.retry_after_cap"),
				PollPause:     viper.GetDuration("delivery.poll_pause"),
			})
			if err != nil {
				return err
			}

			sessions := session.NewStore(session.StoreOptions{
				Repo:      store,
				Retention: viper.GetDuration("session.retention"),
				Logger:    logger,
			})

			admitter := ratelimit.NewAdmitter(logger,
				ratelimit.NewLimiter(ratelimit.LimiterOptions{
					Name:     "short",
					Max:      viper.GetInt("ratelimit.short.max"),
					Window:   viper.GetDuration("ratelimit.short.window"),
					Cooldown: viper.GetDuration("ratelimit.short.cooldown"),
				}),
				ratelimit.NewLimiter(ratelimit.LimiterOptions{
					Name:     "long",
					Max:      viper.GetInt("ratelimit.long.max"),
					Window:   viper.GetDuration("ratelimit.long.window"),
					Cooldown: viper.GetDuration("ratelimit.long.cooldown"),
				}),
			)

			eng, err := engine.New(engine.Options{
				Store:          sessions,
				Sender:         sender,
				Admitter:       admitter,
				Audit:          store,
				Counters:       counters,
				Logger:         logger,
				EventTimeout:   viper.GetDuration("engine.event_timeout"),
				MaxConcurrency: viper.GetInt("engine.max_concurrency"),
				QueueSize:      viper.GetInt("engine.queue_size"),
			})
			if err != nil {
				return err
			}
			defer eng.Shutdown()

			monitor := health.NewMonitor(health.MonitorOptions{
				Counters: counters,
				Store:    sessions,
				Storage:  store,
				Logger:   logger,
				Interval: viper.GetDuration("health.interval"),
				Thresholds: health.Thresholds{
					MemoryPercent: viper.GetFloat64("health.memory_percent"),
					CPUPercent:    viper.GetFloat64("health.cpu_percent"),
					MaxErrors:     viper.GetInt64("health.max_errors"),
				},
			})

			api := httpapi.New(httpapi.Options{
				Dispatch: eng,
				Answerer: client,
				Health:   monitor,
				Logger:   logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			me, err := client.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("verify bot token: %w", err)
			}
			logger.Info("bot_identified", "username", me.Username, "id", me.ID)

			if webhookURL := strings.TrimSpace(viper.GetString("telegram.webhook_url")); webhookURL != "" {
				if err := client.SetWebhook(ctx, strings.TrimRight(webhookURL, "/")+"/webhook"); err != nil {
					return fmt.Errorf("set webhook: %w", err)
				}
				logger.Info("webhook_registered", "url", webhookURL)
			} else {
				logger.Warn("webhook_url_unset", "hint", "set QUIZBOT_TELEGRAM_WEBHOOK_URL to receive updates")
			}

			go sessions.Run(ctx, viper.GetDuration("session.sweep_interval"))
			go monitor.Run(ctx)

			addr := net.JoinHostPort(viper.GetString("server.bind"), strconv.Itoa(viper.GetInt("server.port")))
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			api.SetReady(true)
			errCh := make(chan error, 1)
			go func() {
				logger.Info("server_listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			logger.Info("server_stopping")
			api.SetReady(false)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server_shutdown_error", "error", err.Error())
			}

			// Flush idle sessions so nothing is lost between restarts.
			sessions.Sweep(shutdownCtx)
			return nil
		},
	}
	return cmd
}
