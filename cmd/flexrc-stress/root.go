package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kolkov/flexrc/flexrc"
	"github.com/kolkov/flexrc/internal/stress"
	"github.com/kolkov/flexrc/metrics"
)

const version = "0.1.0"

// Configuration keys. Flags use the same names; environment variables are
// FLEXRC_ followed by the upper-cased key with dashes as underscores.
const (
	keyConfig      = "config"
	keyScheme      = "scheme"
	keyGoroutines  = "goroutines"
	keyIterations  = "iterations"
	keySeed        = "seed"
	keyLogLevel    = "log-level"
	keyMetricsAddr = "metrics-addr"
	keyHold        = "hold"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	v      *viper.Viper
	log    *zap.Logger
	server *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	defaults := stress.DefaultConfig()

	root := &cobra.Command{
		Use:   "flexrc-stress",
		Short: "Stress flexrc reference counting under concurrent load",
		Long: `flexrc-stress runs concurrent workloads against flexrc records and checks
that every payload is released exactly once, after its last handle drops.

Schemes:
  independent   one counter word; conversion needs a unique handle
  hybrid        Local and Shared counters side by side; one-shot claim
  tracked       hybrid plus owner identity; the owner may reclaim`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyConfig, "", "config file (yaml, json or toml)")
	flags.String(keyScheme, string(defaults.Scheme), "counting scheme: independent, hybrid or tracked")
	flags.Int(keyGoroutines, defaults.Goroutines, "concurrent goroutines per scenario")
	flags.Int(keyIterations, defaults.Iterations, "iterations per goroutine")
	flags.Uint64(keySeed, 0, "seed for randomised drop order (0 = time based)")
	flags.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(keyMetricsAddr, "", "serve Prometheus metrics on this address, e.g. :9102")
	flags.Duration(keyHold, 0, "keep serving metrics this long after the run")
	_ = a.v.BindPFlags(flags)

	a.v.SetEnvPrefix("FLEXRC")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.scenarioCmd("clone-drop", "Clone and drop Shared handles from many goroutines",
			(*stress.Runner).CloneDrop),
		a.scenarioCmd("local-churn", "Clone a Local handle many times and drop in random order",
			(*stress.Runner).LocalChurn),
		a.scenarioCmd("claim-race", "Race goroutines to claim the Local side of a hybrid record",
			(*stress.Runner).ClaimRace),
		a.scenarioCmd("round-trip", "Convert records to the other flavor and back",
			(*stress.Runner).RoundTrip),
		a.allCmd(),
		versionCmd(),
	)
	return root
}

// setup loads the config file, builds the logger and starts the metrics
// server.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if path := a.v.GetString(keyConfig); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	log, err := newLogger(a.v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	a.log = log
	flexrc.SetLogger(log)
	if used := a.v.ConfigFileUsed(); used != "" {
		log.Debug("config loaded", zap.String("file", used))
	}

	if addr := a.v.GetString(keyMetricsAddr); addr != "" {
		return a.serveMetrics(addr)
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	if hold := a.v.GetDuration(keyHold); hold > 0 {
		a.log.Info("holding metrics endpoint", zap.Duration("hold", hold))
		select {
		case <-time.After(hold):
		case <-ctx.Done():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

func (a *app) serveMetrics(addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(""),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

// config assembles the stress configuration from flags, environment and
// config file.
func (a *app) config() (stress.Config, error) {
	scheme, err := stress.ParseScheme(a.v.GetString(keyScheme))
	if err != nil {
		return stress.Config{}, err
	}
	cfg := stress.Config{
		Scheme:     scheme,
		Goroutines: a.v.GetInt(keyGoroutines),
		Iterations: a.v.GetInt(keyIterations),
		Seed:       a.v.GetUint64(keySeed),
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}
