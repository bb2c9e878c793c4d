package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anatolykoptev/go-ecoguard"
	"github.com/anatolykoptev/go-ecoguard/internal/conf"
	"github.com/anatolykoptev/go-ecoguard/store"
)

// app carries the state shared by all subcommands once flags are parsed.
type app struct {
	v        *viper.Viper
	cfgPath  string
	settings *conf.Settings
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *ecoguard.Metrics
}

// newRootCommand creates the root command with every subcommand attached.
func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "ecoguard",
		Short:         "Anti-cheat screening for eco-action photo submissions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default: ./ecoguard.yaml if present)")
	pf.String("db", "", "SQLite database path")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	for key, flag := range map[string]string{
		"database.path": "db",
		"log.level":     "log-level",
		"log.format":    "log-format",
	} {
		if err := a.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		fingerprintCommand(a),
		compareCommand(a),
		screenCommand(a),
		userCommand(a),
		monitorCommand(a),
		statsCommand(a),
		alertsCommand(a),
		reviewCommand(a),
	)
	return root
}

// init loads settings and builds the logger and metrics registry.
func (a *app) init(stderr io.Writer) error {
	s, err := conf.Load(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = s.NewLogger(stderr)
	slog.SetDefault(a.logger)

	a.registry = prometheus.NewRegistry()
	a.metrics, err = ecoguard.NewMetrics(a.registry)
	return err
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.settings.Database.Path, a.logger)
}

// core builds the anti-cheat configuration over history.
func (a *app) core(history ecoguard.History) *ecoguard.Config {
	cfg := &ecoguard.Config{
		History:      history,
		Metrics:      a.metrics,
		Logger:       a.logger,
		Detector:     a.settings.DetectorConfig(),
		Throttle:     a.settings.ThrottleConfig(),
		GlobalWindow: a.settings.Detector.GlobalWindow,
		Now:          time.Now,
		OnVerdict: func(ev ecoguard.VerdictEvent) {
			a.logger.Debug("ecoguard: verdict",
				"user_id", ev.UserID,
				"device", ev.DeviceFingerprint,
				"phash", ev.PerceptualHash,
				"duplicate", ev.Verdict.IsDuplicate,
				"confidence", ev.Verdict.Confidence)
		},
		OnPanic: func(tag string, r any) {
			a.logger.Error("ecoguard: recovered panic", "where", tag, "panic", fmt.Sprint(r))
		},
	}
	if c := a.settings.Cache; c.Enabled {
		cfg.Cache = ecoguard.NewMemoryCache(c.TTL, c.Cleanup)
	}
	return cfg
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
