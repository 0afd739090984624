// Package dashboard serves the read-side web page over the records table.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/metrics"
	"github.com/ppiankov/vitals/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	snapshotTimeout        = 30 * time.Second
)

// Server is the dashboard HTTP server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	source  Source
	table   string
	cfg     model.DashboardConfig
	metrics *metrics.Metrics
	logger  logging.Logger
}

// Option configures a Server
type Option func(*Server)

// WithMetrics exposes m at /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request and lifecycle logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTable names the table in the page caption
func WithTable(table string) Option {
	return func(s *Server) { s.table = table }
}

// New builds the router and the http.Server for cfg.Addr
func New(cfg model.DashboardConfig, source Source, opts ...Option) (*Server, error) {
	s := &Server{
		source: source,
		cfg:    cfg,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.DefaultCountries <= 0 {
		s.cfg.DefaultCountries = model.DefaultConfig().Dashboard.DefaultCountries
	}

	tmpl, err := template.New("dashboard").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recoveryMiddleware(s.logger))
	router.Use(loggerMiddleware(s.logger))
	router.SetHTMLTemplate(tmpl)
	s.routes(router)

	s.router = router
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/", s.handlePage)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.GET("/records", s.handleRecords)
	api.GET("/summary", s.handleSummary)
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", logging.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down dashboard")
	}

	//nolint:contextcheck // ctx is already cancelled; shutdown needs its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) snapshot(c *gin.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()
	return s.source.Snapshot(ctx)
}

func (s *Server) handlePage(c *gin.Context) {
	snap, err := s.snapshot(c)
	if err != nil {
		_ = c.Error(err)
		c.HTML(http.StatusServiceUnavailable, "error", gin.H{"Message": describe(err)})
		return
	}

	view := BuildView(snap, ParseFilter(c.Request.URL.Query()), s.cfg.DefaultCountries)
	c.HTML(http.StatusOK, "page", gin.H{"View": view, "Table": s.table})
}

func (s *Server) handleRecords(c *gin.Context) {
	snap, err := s.snapshot(c)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": describe(err)})
		return
	}

	records := ParseFilter(c.Request.URL.Query()).Apply(snap.Records)
	c.JSON(http.StatusOK, gin.H{
		"records":   records,
		"count":     len(records),
		"loaded_at": snap.LoadedAt,
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	snap, err := s.snapshot(c)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": describe(err)})
		return
	}
	c.JSON(http.StatusOK, Summarize(snap.Records))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// describe renders err for the page; configuration problems name the missing settings
func describe(err error) string {
	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "The data store is not configured: " + cfgErr.Error()
	}
	return "Error fetching data from the store: " + err.Error()
}

var templateFuncs = template.FuncMap{
	"rate": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", *v)
	},
	"epoch": func(v *float64) string {
		if v == nil {
			return ""
		}
		return model.TimeFromEpoch(*v).Format("2006-01-02 15:04:05")
	},
}
