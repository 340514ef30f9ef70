// Package config loads the supervisor process's settings: the engine knobs
// from a YAML file, overridable by CLI flags, matching the teacher's own
// split of a plain struct plus a Flags(*cobra.Command) method.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// TLS holds the transport's certificate material. The supervision engine
// itself never touches these; they exist so the outer server command has
// somewhere to put them alongside the engine's own config, exactly as the
// teacher's server.Config does.
type TLS struct {
	CACertFile string `yaml:"ca_cert_file"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
}

// Config is the full set of settings consumed by the outer layer: the five
// engine knobs plus transport-adjacent fields the teacher always carries
// alongside its engine config.
type Config struct {
	// ControllerRoot is the cgroup v2 unified hierarchy mount point.
	ControllerRoot string `yaml:"controller_root"`
	// GroupPrefix names the supervisor's own subdirectory under ControllerRoot.
	GroupPrefix string `yaml:"group_prefix"`
	// ReaperInterval is the poll cadence of the background reaper.
	ReaperInterval time.Duration `yaml:"reaper_interval"`
	// StopGrace is the default interval between SIGTERM and SIGKILL.
	StopGrace time.Duration `yaml:"stop_grace"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ListenAddr is the transport shim's bind address.
	ListenAddr string `yaml:"listen_addr"`
	// TLS is the transport shim's certificate configuration.
	TLS TLS `yaml:"tls"`
	// ShutdownTimeout bounds how long the serve command waits for
	// GracefulStop before forcing shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults returns a Config populated with this system's stated defaults.
func Defaults() Config {
	return Config{
		ControllerRoot:  "/sys/fs/cgroup",
		GroupPrefix:     "nexus_weaver",
		ReaperInterval:  time.Second,
		StopGrace:       2 * time.Second,
		LogLevel:        "info",
		ListenAddr:      ":7717",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads a YAML file at path into a Defaults()-seeded Config. A missing
// path is not an error: the caller is expected to rely on flags/defaults
// alone in that case.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Flags registers cmd's CLI flags, bound directly to c's fields, so that
// flags passed on the command line override whatever Load populated.
func (c *Config) Flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.ControllerRoot, "controller-root", c.ControllerRoot, "cgroup v2 unified hierarchy mount point")
	cmd.Flags().StringVar(&c.GroupPrefix, "group-prefix", c.GroupPrefix, "name of the supervisor's subdirectory under controller-root")
	cmd.Flags().DurationVar(&c.ReaperInterval, "reaper-interval", c.ReaperInterval, "poll cadence of the background reaper")
	cmd.Flags().DurationVar(&c.StopGrace, "stop-grace", c.StopGrace, "default interval between SIGTERM and SIGKILL")
	cmd.Flags().StringVar(&c.LogLevel, "log-level", c.LogLevel, "one of debug, info, warn, error")

	cmd.Flags().StringVar(&c.ListenAddr, "listen-addr", c.ListenAddr, "transport listen address")
	cmd.Flags().StringVar(&c.TLS.CACertFile, "tls-ca-cert", c.TLS.CACertFile, "tls ca cert file for validating client certificates")
	cmd.Flags().StringVar(&c.TLS.CertFile, "tls-cert", c.TLS.CertFile, "tls server certificate file")
	cmd.Flags().StringVar(&c.TLS.KeyFile, "tls-key", c.TLS.KeyFile, "tls server key file")
	cmd.Flags().DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "time to wait for graceful shutdown before forcing it")
}
