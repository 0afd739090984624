package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/vitals/internal/cache"
	"github.com/ppiankov/vitals/internal/dashboard"
	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard",
	Long: `Serve starts the dashboard over the records table: global average rates,
a marriage-rate trend per country, marriage vs. divorce scatter and the raw
table, filterable by year range and countries.

JSON is available at /api/records and /api/summary, metrics at /metrics.

Example:
  vitals serve
  vitals serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8501)")
	_ = viper.BindPFlag("dashboard.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(reg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, closeStore, err := a.snapshotSource(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := dashboard.New(a.cfg.Dashboard, source,
		dashboard.WithMetrics(a.metrics),
		dashboard.WithLogger(a.logger),
		dashboard.WithTable(a.cfg.Store.Table),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Dashboard listening on %s\n", a.cfg.Dashboard.Addr)
	return srv.Run(ctx)
}

// snapshotSource opens the store for the dashboard. Missing credentials are
// fatal; a store that is configured but cannot be opened is not, and the page
// reports the error until the process restarts.
func (a *app) snapshotSource(ctx context.Context) (dashboard.Source, func(), error) {
	s, err := a.openStore(ctx)
	if err != nil {
		var cfgErr *model.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, nil, err
		}
		a.logger.Error("cannot open store", logging.Error(err))
		return dashboard.Unavailable(err), func() {}, nil
	}

	ttl := a.cfg.Dashboard.CacheTTL
	loader := dashboard.NewLoader(s, a.cfg.Store.Table,
		dashboard.WithSnapshotCache(cache.NewMemoryCache(ttl, ttl), ttl),
		dashboard.WithLoaderMetrics(a.metrics),
		dashboard.WithLoaderLogger(a.logger),
	)
	return loader, func() { _ = s.Close() }, nil
}
