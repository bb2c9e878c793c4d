package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-ecoguard"
	"github.com/anatolykoptev/go-ecoguard/notify"
	"github.com/anatolykoptev/go-ecoguard/store"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newMonitor(st *store.Store) (*ecoguard.Monitor, error) {
	opts := []ecoguard.MonitorOption{
		ecoguard.WithLogger(a.logger),
		ecoguard.WithAlertSink(st),
		ecoguard.WithMonitorMetrics(a.metrics),
	}
	if n := a.settings.Notify; len(n.URLs) > 0 {
		notifier, err := notify.NewShoutrrr(n.Timeout, n.URLs...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ecoguard.WithNotifier(notifier))
	}
	return ecoguard.NewMonitor(st, a.settings.MonitorConfig(), opts...)
}

func monitorCommand(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the abuse monitor on its schedule until interrupted",
		Long: `Run the abuse monitor on the configured cron schedule (default @hourly).

With --once a single pass runs immediately and its alerts are printed.
When metrics.listen is set, Prometheus metrics are served on /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := a.newMonitor(st)
			if err != nil {
				return err
			}
			sched, err := ecoguard.NewScheduler(m, a.settings.Monitor.Schedule, a.settings.Monitor.Timeout)
			if err != nil {
				return err
			}

			if once {
				alerts := sched.RunNow(cmd.Context())
				if alerts == nil {
					alerts = []ecoguard.Alert{}
				}
				return writeJSON(cmd.OutOrStdout(), alerts)
			}

			ctx := cmd.Context()
			srv := a.metricsServer()
			if srv != nil {
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("ecoguard: metrics server failed", "addr", srv.Addr, "error", err)
					}
				}()
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			a.logger.Info("ecoguard: shutting down monitor")

			<-sched.Stop().Done()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and print its alerts")
	return cmd
}

// metricsServer returns the /metrics server, or nil when metrics.listen is empty.
func (a *app) metricsServer() *http.Server {
	addr := a.settings.Metrics.Listen
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second} //nolint:mnd // header timeout
}

func statsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the real-time submission statistics and system health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := ecoguard.NewMonitor(st, a.settings.MonitorConfig(), ecoguard.WithLogger(a.logger))
			if err != nil {
				return err
			}
			stats, err := m.Stats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}
