package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nexus-weaver/kernel/internal/cgroup"
	"github.com/nexus-weaver/kernel/internal/config"
	"github.com/nexus-weaver/kernel/internal/metrics"
	"github.com/nexus-weaver/kernel/internal/server"
	"github.com/nexus-weaver/kernel/internal/supervisor"
)

type serve struct {
	cfg        config.Config
	configPath string

	srv *server.Server
	sup *supervisor.Supervisor
}

// Serve wires the full supervision stack -- cgroup binding, supervisor
// facade, transport -- and runs it until a signal or context cancellation
// asks it to stop.
func Serve() *cobra.Command {
	var s serve

	cmd := cobra.Command{
		Use:   "serve",
		Short: "Bind the cgroup controller and listen for requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd)
		},
	}

	cmd.Flags().StringVar(&s.configPath, "config", "", "path to a YAML config file")
	s.cfg = config.Defaults()
	s.cfg.Flags(&cmd)

	return &cmd
}

// run merges a loaded config file under whatever flags the caller set
// explicitly on the command line: any flag left at its default is
// overwritten by the file's value, and any flag the caller did set wins.
func (s *serve) run(cmd *cobra.Command) error {
	loaded, err := config.Load(s.configPath)
	if err != nil {
		return err
	}

	merged := loaded
	cmd.Flags().Visit(func(f *pflag.Flag) {
		setExplicit(&merged, s.cfg, f.Name)
	})
	s.cfg = merged

	log := newLogger(s.cfg.LogLevel)
	ctx := cmd.Context()

	cg, err := cgroup.Init(s.cfg.ControllerRoot, s.cfg.GroupPrefix, log)
	if err != nil {
		return fmt.Errorf("binding cgroup controller: %w", err)
	}

	s.sup = supervisor.New(ctx, cg, supervisor.Options{
		ReaperInterval: s.cfg.ReaperInterval,
		StopGrace:      s.cfg.StopGrace,
		Log:            log,
		OnEvent:        metrics.OnTransition,
	})

	if s.srv, err = server.New(s.cfg, s.sup, log); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		err = s.srv.Serve()
	}()

	select {
	case <-done:
		return err
	case sig := <-sigCh:
		log.Warn("caught signal", "sig", sig)
		return s.shutdown(log)
	case <-ctx.Done():
		log.Warn("application context done", "err", ctx.Err())
		return s.shutdown(log)
	}
}

func (s *serve) shutdown(log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.srv.GracefulStop()
		s.sup.Shutdown(s.cfg.StopGrace)
	}()

	select {
	case <-done:
		log.Info("shutdown gracefully")
		return nil
	case <-ctx.Done():
		log.Warn("timed out waiting to shutdown")
		return ctx.Err()
	}
}

// setExplicit copies the field named by an explicitly-set flag from
// explicit into merged, so a command-line flag always wins over whatever
// the config file said.
func setExplicit(merged *config.Config, explicit config.Config, flagName string) {
	switch flagName {
	case "controller-root":
		merged.ControllerRoot = explicit.ControllerRoot
	case "group-prefix":
		merged.GroupPrefix = explicit.GroupPrefix
	case "reaper-interval":
		merged.ReaperInterval = explicit.ReaperInterval
	case "stop-grace":
		merged.StopGrace = explicit.StopGrace
	case "log-level":
		merged.LogLevel = explicit.LogLevel
	case "listen-addr":
		merged.ListenAddr = explicit.ListenAddr
	case "tls-ca-cert":
		merged.TLS.CACertFile = explicit.TLS.CACertFile
	case "tls-cert":
		merged.TLS.CertFile = explicit.TLS.CertFile
	case "tls-key":
		merged.TLS.KeyFile = explicit.TLS.KeyFile
	case "shutdown-timeout":
		merged.ShutdownTimeout = explicit.ShutdownTimeout
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
