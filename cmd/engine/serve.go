package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/appointment-engine/internal/application"
	"github.com/example/appointment-engine/internal/availability"
	"github.com/example/appointment-engine/internal/calendar"
	"github.com/example/appointment-engine/internal/config"
	"github.com/example/appointment-engine/internal/dispatch"
	httptransport "github.com/example/appointment-engine/internal/http"
	"github.com/example/appointment-engine/internal/metrics"
	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/recurrence"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	dispatcher, closeDispatch, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDispatch()

	handler := newHandler(cfg, loc, store, dispatcher, metrics.New(), logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr, "driver", cfg.Store.Driver, "timezone", loc.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// newDispatcher publishes to NATS when a URL is configured and logs otherwise.
// The returned func stops the retry scheduler, drains once and closes the connection.
func newDispatcher(cfg config.Config, logger *slog.Logger) (*dispatch.Dispatcher, func(), error) {
	var notifier dispatch.Notifier = dispatch.NewLogNotifier(logger)
	closeNATS := func() {}
	if cfg.NATS.URL != "" {
		natsNotifier, conn, err := dispatch.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		notifier = natsNotifier
		closeNATS = func() {
			if err := conn.Drain(); err != nil {
				logger.Warn("failed to drain nats connection", "error", err)
			}
		}
	}

	dispatcher := dispatch.NewDispatcher(notifier, dispatch.NewLogBillingRecorder(logger), dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Logger:      logger,
	})
	if err := dispatcher.Start(cfg.Dispatch.RetrySchedule); err != nil {
		closeNATS()
		return nil, nil, fmt.Errorf("start dispatch retries: %w", err)
	}

	return dispatcher, func() {
		dispatcher.Stop()
		dispatcher.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		dispatcher.Drain(ctx)
		if left := dispatcher.Pending(); left > 0 {
			logger.Warn("undelivered booking events remain", "pending", left)
		}
		closeNATS()
	}, nil
}

func newHandler(cfg config.Config, loc *time.Location, store persistence.Store, dispatcher application.Dispatcher, collector *metrics.Collector, logger *slog.Logger) http.Handler {
	engine := recurrence.NewEngine(loc)

	booking := application.NewBookingService(application.BookingDeps{
		Appointments: store,
		Schedules:    store,
		Clients:      application.NewClientDirectory(store),
		Dispatcher:   dispatcher,
		Metrics:      collector,
		Logger:       logger,
	})
	slots := application.NewAvailabilityService(application.AvailabilityDeps{
		Appointments: store,
		Schedules:    store,
		Blocks:       store,
		Calculator:   availability.NewCalculator(engine, cfg.SlotGranularity),
		Metrics:      collector,
		Workers:      cfg.AvailabilityWorkers,
		Logger:       logger,
	})
	exporter := calendar.NewExporter(store, store, engine, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Appointments: httptransport.NewAppointmentHandler(booking, logger),
		Availability: httptransport.NewAvailabilityHandler(slots, loc, logger),
		Calendar:     httptransport.NewCalendarHandler(exporter, loc, logger),
		Metrics:      collector.Handler(),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})
}
