// Package management serves the admin HTTP API: trigger runs, manage depth
// overrides, inspect data quality, and expose Prometheus metrics.
package management

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/snowrank/snowrank/internal/database"
	"github.com/snowrank/snowrank/internal/observability"
	"github.com/snowrank/snowrank/internal/pipeline"
	"github.com/snowrank/snowrank/pkg/config"
	"go.uber.org/zap"
)

// Controller is the management API controller.
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      config.ManagementConfig
	Server   http.Server
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates the management API controller.
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg config.ManagementConfig,
	runner *pipeline.Runner, gateway *database.Gateway, metrics *observability.Metrics,
	logger *zap.SugaredLogger) (*Controller, error) {

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		cfg:    cfg,
		logger: logger,
	}

	if ctrl.cfg.ListenAddr == "" {
		logger.Info("management listen-addr not provided; defaulting to 127.0.0.1:8081")
		ctrl.cfg.ListenAddr = "127.0.0.1:8081"
	}
	if ctrl.cfg.AdminKey == "" {
		logger.Warn("no admin key configured; mutating endpoints are disabled")
	}

	ctrl.handlers = NewHandlers(ctrl, runner, gateway)

	router := ctrl.setupRouter(metrics)
	ctrl.Server.Addr = ctrl.cfg.ListenAddr
	ctrl.Server.Handler = router
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// setupRouter configures the HTTP router with all endpoints.
func (c *Controller) setupRouter(metrics *observability.Metrics) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", c.handlers.GetHealth).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(c.authMiddleware)

	api.HandleFunc("/pipeline/run", c.handlers.TriggerRun).Methods("POST")
	api.HandleFunc("/quality", c.handlers.GetQualityReport).Methods("GET")
	api.HandleFunc("/overrides/{slug}", c.handlers.SetOverride).Methods("PUT")
	api.HandleFunc("/overrides/{slug}", c.handlers.ClearOverride).Methods("DELETE")

	return router
}

// authMiddleware requires the configured admin key in the X-Admin-Key
// header. With no key configured, every /api request is rejected.
func (c *Controller) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.cfg.AdminKey == "" || r.Header.Get("X-Admin-Key") != c.cfg.AdminKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartController starts the management API server.
func (c *Controller) StartController() error {
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		c.logger.Infof("management API server starting on %s", c.Server.Addr)
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("management API server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the management API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}
