package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/auth"
	"tradecore/src/events"
	"tradecore/src/handler"
)

// Dependencies is everything the HTTP surface needs wired in.
type Dependencies struct {
	Engine         handler.SignalEngine
	Reconciliation handler.Reconciler
	Scheduler      handler.JobRegistry
	Hub            *events.Hub
}

// StartServer blocks until SIGINT/SIGTERM, then shuts down gracefully. baseCtx
// is handed to scheduler enable actions so restarted tickers outlive requests.
func StartServer(baseCtx context.Context, config *Config, deps Dependencies) {
	r := chi.NewRouter()

	tokens := map[string]auth.Principal{}
	if config.AdminToken != "" {
		tokens[config.AdminToken] = auth.Principal{Name: "admin", Role: auth.RoleAdmin}
	}
	if config.WebhookToken != "" {
		tokens[config.WebhookToken] = auth.Principal{Name: "webhook", Role: auth.RoleWebhook}
	}

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})
	r.Get("/ws", deps.Hub.ServeWS)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.TokenAuth(tokens))

		r.With(auth.RequireRole(auth.RoleWebhook)).
			Post("/webhook/signal", handler.DefaultWebhookSignalHandler(deps.Engine))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Get("/positions", handler.DefaultSearchPositionsHandler())
			r.Get("/positions/{id}", handler.DefaultGetPositionHandler())
			r.Put("/positions/risk-config", handler.DefaultBulkRiskConfigHandler())
			r.Delete("/positions/{id}", handler.DefaultDeletePositionHandler())

			r.Get("/executions", handler.DefaultSearchExecutionsHandler())
			r.Get("/operations", handler.DefaultSearchOperationsHandler())

			r.Get("/monitors", handler.ListMonitorsHandler(deps.Engine))
			r.Post("/monitors/abort", handler.AbortMonitorHandler(deps.Engine))

			r.Post("/reconciliation/missing/detect", handler.DetectMissingOrdersHandler(deps.Reconciliation))
			r.Post("/reconciliation/missing/import", handler.ImportMissingOrdersHandler(deps.Reconciliation))
			r.Get("/reconciliation/orphans", handler.ListOrphanedExecutionsHandler(deps.Reconciliation))
			r.Post("/reconciliation/orphans/fix", handler.FixOrphanedExecutionsHandler(deps.Reconciliation))

			r.Get("/scheduler/jobs", handler.ListJobsHandler(deps.Scheduler))
			r.Post("/scheduler/jobs/{name}/{action}", handler.JobActionHandler(deps.Scheduler, baseCtx))
		})
	})

	addr := ":" + config.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
