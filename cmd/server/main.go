// @title Event Admission API
// @version 1.0
// @description Event publication lifecycle and participation admission with capacity control.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eventadmission/config"
	_ "eventadmission/docs"
	"eventadmission/internal/adapters/auth"
	"eventadmission/internal/adapters/email"
	"eventadmission/internal/adapters/stats"
	httpdelivery "eventadmission/internal/delivery/http"
	"eventadmission/internal/delivery/http/controllers"
	"eventadmission/internal/domain"
	"eventadmission/internal/metrics"
	"eventadmission/internal/repository/memory"
	"eventadmission/internal/repository/postgres"
	"eventadmission/internal/services"
	"eventadmission/internal/telemetry"
)

func main() {
	logger := config.NewLogger()
	if err := run(logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// stores bundles the persistence backend selected by STORE_DRIVER.
type stores struct {
	tx       domain.Transactor
	events   domain.EventRepository
	requests domain.ParticipationRequestRepository
	users    domain.UserRepository
	close    func() error
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.AppName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:             cfg.Email.AWSRegion,
			AccessKeyID:        cfg.Email.AWSAccessKeyID,
			SecretAccessKey:    cfg.Email.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create mailer: %w", err)
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	notifier := services.NewNotificationService(mailer, renderer, st.users, logger)

	var statsClient domain.StatsClient
	if cfg.StatsServerURL != "" {
		statsClient = stats.NewHTTPClient(cfg.StatsServerURL, &http.Client{Timeout: cfg.StatsTimeout})
	} else {
		logger.Warn("STATS_SERVER_URL is empty, views will always be 0")
		statsClient = stats.NewNoopClient()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	eventService := services.NewEventService(st.tx, st.events, st.users, statsClient, notifier, m, logger, cfg.ServiceTimeout, nil)
	admissionService := services.NewAdmissionService(st.tx, st.events, st.requests, st.users, notifier, m, logger, services.AdmissionConfig{
		MaxAttempts: cfg.AdmissionAttempts,
		Timeout:     cfg.ServiceTimeout,
	})

	handler := httpdelivery.NewRouter(httpdelivery.Controllers{
		Events:      controllers.NewEventController(logger, eventService),
		AdminEvents: controllers.NewAdminEventController(logger, eventService),
		Public:      controllers.NewPublicEventController(logger, eventService, cfg.AppName),
		Requests:    controllers.NewRequestController(logger, admissionService),
	}, httpdelivery.RouterConfig{
		Verifier:    auth.NewJWTVerifier(cfg.JWTSecret),
		Logger:      logger,
		Gatherer:    registry,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Environment, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if strings.EqualFold(cfg.StoreDriver, "memory") {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := memory.NewStore()
		return &stores{
			tx:       mem,
			events:   mem.Events(),
			requests: mem.Requests(),
			users:    mem.Users(),
			close:    func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &stores{
		tx:       postgres.NewTransactor(db),
		events:   postgres.NewEventRepository(db),
		requests: postgres.NewParticipationRequestRepository(db),
		users:    postgres.NewUserRepository(db),
		close:    db.Close,
	}, nil
}
