/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave and penalty engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.yml + environment), apply flag overrides
  2. Configure logging
  3. Initialize SQLite store
  4. Seed penalty tiers (policy file or built-in defaults)
  5. Build notifier (log channel, email channel when enabled)
  6. Create API handler, router and daily scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Configuration file (default: config.yml, optional)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (an in-flight run finishes first)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/staffops.db"
  SCHEDULER_RUN_AT=07:30 LOG_FORMAT=json ./server

SEE ALSO:
  - config/config.go: configuration keys
  - api/server.go: Router configuration
  - api/scheduler.go: daily run
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/api"
	"github.com/warp/staffops/config"
	"github.com/warp/staffops/factory"
	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/notify"
	"github.com/warp/staffops/penalty"
	"github.com/warp/staffops/store/sqlite"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (default config.yml)")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	var files []string
	if *configFile != "" {
		files = append(files, *configFile)
	}
	conf, err := config.Load(files...)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if *port != 0 {
		conf.Server.Port = *port
	}
	if *dbPath != "" {
		conf.Database.Path = *dbPath
	}
	if err := conf.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	conf.ConfigureLogger()

	store, err := sqlite.New(conf.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	clock := generic.SystemClock{}
	if err := seedPolicies(context.Background(), store, conf, clock.Now()); err != nil {
		log.WithError(err).Fatal("failed to seed penalty policies")
	}

	hour, minute, _ := conf.RunAt()
	loc, _ := conf.Location()
	handler := api.NewHandler(store, clock, api.Options{
		Limits: penalty.Limits{
			MinExcuseLength:  conf.Lift.MinExcuseLength,
			MaxDeductionDays: conf.Lift.MaxDeductionDays,
		},
		Notifier: buildNotifier(conf),
		Scheduler: api.SchedulerConfig{
			Enabled:          conf.SchedulerEnabled(),
			Hour:             hour,
			Minute:           minute,
			Location:         loc,
			GraceDays:        conf.GraceDays(),
			RefreshForecasts: conf.RefreshForecasts(),
		},
	})
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", conf.Server.ListenAddr, conf.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	handler.Scheduler.Start()

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	handler.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("server stopped")
}

func seedPolicies(ctx context.Context, store *sqlite.Store, conf *config.Configuration, now time.Time) error {
	f := factory.NewPolicyFactory()
	policies := f.Default()
	if conf.Policies.File != "" {
		loaded, err := f.LoadFile(conf.Policies.File)
		if err != nil {
			return err
		}
		policies = loaded
	} else {
		// Keep an administered table rather than overwrite it with defaults.
		existing, err := store.ListPolicies(ctx, false)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
	}
	log.WithField("count", len(policies)).Info("seeding penalty policies")
	return f.Seed(ctx, store, policies, now)
}

func buildNotifier(conf *config.Configuration) *notify.Notifier {
	logger := log.WithField("component", "notify")
	channels := []notify.Channel{notify.LogChannel{Logger: logger}}

	recipients := conf.Recipients()
	if conf.EmailEnabled() {
		channels = append(channels, notify.NewEmailChannel(notify.SMTPConfig{
			Host:     conf.Smtp.Host,
			Port:     conf.Smtp.Port,
			User:     conf.Smtp.User,
			Password: conf.Smtp.Password,
			From:     conf.Smtp.From,
			TLS:      conf.SmtpTLS(),
		}, logger))
	}
	if len(recipients) == 0 {
		logger.Warn("no reviewer recipients configured, notifications go to the log only")
		recipients = []string{"reviewers"}
		channels = channels[:1]
	}
	return notify.New(recipients, logger, channels...)
}
