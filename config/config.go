package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Intervals IntervalsConfig `mapstructure:"intervals"`
	Startup   StartupConfig   `mapstructure:"startup"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ClusterConfig lists the managed hosts
type ClusterConfig struct {
	Name  string       `mapstructure:"name"`
	Hosts []HostConfig `mapstructure:"hosts"`
}

// HostConfig is one managed host
type HostConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	User    string `mapstructure:"user"`
	Port    int    `mapstructure:"port"`
}

// SSHConfig contains remote execution settings
type SSHConfig struct {
	KeyFile    string        `mapstructure:"key_file"`
	KnownHosts string        `mapstructure:"known_hosts"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// IntervalsConfig contains the loop periods
type IntervalsConfig struct {
	Connection       time.Duration `mapstructure:"connection"`
	ServerStatus     time.Duration `mapstructure:"server_status"`
	DrbdWait         time.Duration `mapstructure:"drbd_wait"`
	CrmRetry         time.Duration `mapstructure:"crm_retry"`
	FullRefreshEvery int           `mapstructure:"full_refresh_every"`
}

// StartupConfig controls the wait for the first connected host
type StartupConfig struct {
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

// PollerConfig contains loop supervision settings
type PollerConfig struct {
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// CommandsConfig holds the remote command lines
type CommandsConfig struct {
	Probe         string `mapstructure:"probe"`
	ClusterStatus string `mapstructure:"cluster_status"`
	DrbdEvents    string `mapstructure:"drbd_events"`
	DrbdConfig    string `mapstructure:"drbd_config"`
	HWInfo        string `mapstructure:"hw_info"`
	HWInfoLazy    string `mapstructure:"hw_info_lazy"`
	VMInfo        string `mapstructure:"vm_info"`
	RACatalog     string `mapstructure:"ra_catalog"`
}

// ServerConfig contains the gRPC listener configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// StorageConfig contains storage-related configuration
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/clusterwatch")
	}

	setDefaults(v)

	// Read environment variables, CLUSTERWATCH_SERVER_PORT etc.
	v.SetEnvPrefix("CLUSTERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("cluster.name", "cluster")

	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.timeout", "15s")

	v.SetDefault("intervals.connection", "10s")
	v.SetDefault("intervals.server_status", "10s")
	v.SetDefault("intervals.drbd_wait", "10s")
	v.SetDefault("intervals.crm_retry", "5s")
	v.SetDefault("intervals.full_refresh_every", 5)

	v.SetDefault("startup.connect_backoff", "30s")
	v.SetDefault("startup.connect_attempts", 10)

	v.SetDefault("poller.stop_timeout", "30s")

	v.SetDefault("commands.probe", "true")
	v.SetDefault("commands.cluster_status", "/usr/libexec/clusterwatch/cluster-status")
	v.SetDefault("commands.drbd_events", "/usr/libexec/clusterwatch/drbd-events")
	v.SetDefault("commands.drbd_config", "drbdadm -d dump-xml")
	v.SetDefault("commands.hw_info", "/usr/libexec/clusterwatch/hw-info")
	v.SetDefault("commands.hw_info_lazy", "/usr/libexec/clusterwatch/hw-info --lazy")
	v.SetDefault("commands.vm_info", "/usr/libexec/clusterwatch/vm-info")
	v.SetDefault("commands.ra_catalog", "/usr/libexec/clusterwatch/ra-catalog")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 9400)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "localhost")
	v.SetDefault("metrics.port", 9401)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("storage.backend", "badger")
	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// validateConfig validates the configuration and fills per-host defaults
func validateConfig(config *Config) error {
	seen := map[string]bool{}
	for i := range config.Cluster.Hosts {
		h := &config.Cluster.Hosts[i]
		if h.Name == "" {
			return fmt.Errorf("cluster.hosts[%d].name is required", i)
		}
		key := strings.ToLower(h.Name)
		if seen[key] {
			return fmt.Errorf("cluster.hosts: duplicate host %q", h.Name)
		}
		seen[key] = true
		if h.Address == "" {
			h.Address = h.Name
		}
		if h.User == "" {
			h.User = "root"
		}
		if h.Port == 0 {
			h.Port = 22
		}
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("cluster.hosts[%d].port must be between 1 and 65535", i)
		}
	}

	for name, d := range map[string]time.Duration{
		"intervals.connection":    config.Intervals.Connection,
		"intervals.server_status": config.Intervals.ServerStatus,
		"intervals.drbd_wait":     config.Intervals.DrbdWait,
		"intervals.crm_retry":     config.Intervals.CrmRetry,
		"startup.connect_backoff": config.Startup.ConnectBackoff,
		"poller.stop_timeout":     config.Poller.StopTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if config.Intervals.FullRefreshEvery < 1 {
		return fmt.Errorf("intervals.full_refresh_every must be at least 1")
	}
	if config.Startup.ConnectAttempts < 1 {
		return fmt.Errorf("startup.connect_attempts must be at least 1")
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if config.Metrics.Enabled && (config.Metrics.Port < 1 || config.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}

	switch config.Storage.Backend {
	case "badger":
		config.Storage.DataDir = filepath.Clean(config.Storage.DataDir)
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be badger or memory")
	}

	if _, err := log.ParseLevel(config.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if config.Logging.Format != "text" && config.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// Apply configures logger with the level and format.
func (c LoggingConfig) Apply(logger *log.Logger) error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	_ = validateConfig(&config)

	return &config
}
