package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	configFile = "config.toml"

	DefaultHost         = "192.168.178.167"
	DefaultPort         = 5672
	DefaultUsername     = "guest"
	DefaultPassword     = "guest"
	DefaultVHost        = "/"
	DefaultExchange     = "logging.exchange"
	DefaultExchangeType = "fanout"
	DefaultQueue        = "system-a.log.queue"
	DefaultBindingKey   = "#"
	DefaultLogFile      = "received_logs.log"

	defaultDialTimeout    = 30 * time.Second
	defaultConnectionName = "rabbitlog"
)

var ErrUnknownProfile = errors.New("unknown profile")

// FileConfig is the TOML file structure.
type FileConfig struct {
	LogFile     string             `toml:"log_file"`
	SyncWrites  *bool              `toml:"sync_writes"`
	MetricsAddr string             `toml:"metrics_addr"`
	Profiles    map[string]Profile `toml:"profiles"`
}

// Profile is a named broker connection profile.
type Profile struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	VHost         string `toml:"vhost"`
	ManagementURL string `toml:"management_url"`
}

// Broker holds everything needed to open a session with RabbitMQ.
type Broker struct {
	Host          string `env:"RABBITMQ_HOST"`
	Port          int    `env:"RABBITMQ_PORT"`
	Username      string `env:"RABBITMQ_USER"`
	Password      string `env:"RABBITMQ_PASS"`
	VHost         string `env:"RABBITMQ_VHOST"`
	ManagementURL string `env:"RABBITMQ_MANAGEMENT_URL"`

	DialTimeout    time.Duration
	ConnectionName string
}

// Addr returns host:port.
func (b Broker) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// Topology names the exchange, queue and binding the collector declares.
type Topology struct {
	Exchange     string
	ExchangeType string
	Queue        string
	BindingKey   string
}

// Config is the resolved runtime config. It is built once at startup and
// passed by value to every component.
type Config struct {
	Broker   Broker
	Topology Topology

	LogFile     string `env:"RABBITLOG_FILE"`
	SyncWrites  bool
	MetricsAddr string `env:"RABBITLOG_METRICS_ADDR"`
	Verbose     bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Broker: Broker{
			Host:           DefaultHost,
			Port:           DefaultPort,
			Username:       DefaultUsername,
			Password:       DefaultPassword,
			VHost:          DefaultVHost,
			DialTimeout:    defaultDialTimeout,
			ConnectionName: defaultConnectionName,
		},
		Topology: Topology{
			Exchange:     DefaultExchange,
			ExchangeType: DefaultExchangeType,
			Queue:        DefaultQueue,
			BindingKey:   DefaultBindingKey,
		},
		LogFile:    DefaultLogFile,
		SyncWrites: true,
	}
}

// LoadFileConfig loads config.toml from configDir.
// Returns a zero-value FileConfig (no error) if the file doesn't exist.
func LoadFileConfig(configDir string) (*FileConfig, error) {
	path := filepath.Join(configDir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	var cfg FileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve layers the built-in defaults, the global file keys, the named
// profile and the environment into a runtime Config. An empty profileName
// skips the profile layer.
func (fc FileConfig) Resolve(profileName string) (Config, error) {
	cfg := Default()

	if fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}
	if fc.SyncWrites != nil {
		cfg.SyncWrites = *fc.SyncWrites
	}
	cfg.MetricsAddr = fc.MetricsAddr

	if profileName != "" {
		p, ok := fc.Profiles[profileName]
		if !ok {
			return Config{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profileName)
		}
		p.apply(&cfg.Broker)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p Profile) apply(b *Broker) {
	if p.Host != "" {
		b.Host = p.Host
	}
	if p.Port != 0 {
		b.Port = p.Port
	}
	if p.Username != "" {
		b.Username = p.Username
	}
	if p.Password != "" {
		b.Password = p.Password
	}
	if p.VHost != "" {
		b.VHost = p.VHost
	}
	if p.ManagementURL != "" {
		b.ManagementURL = p.ManagementURL
	}
}

// Overrides are values set explicitly on the command line. Empty fields
// leave the resolved value untouched.
type Overrides struct {
	LogFile     string
	MetricsAddr string
	Verbose     bool
}

// WithOverrides returns a copy of c with the command-line values applied.
func (c Config) WithOverrides(o Overrides) Config {
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
	if o.Verbose {
		c.Verbose = true
	}
	return c
}

// Validate reports configuration that cannot possibly work.
func (c Config) Validate() error {
	if c.Broker.Host == "" {
		return errors.New("broker host must not be empty")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker port %d out of range", c.Broker.Port)
	}
	if c.LogFile == "" {
		return errors.New("log file path must not be empty")
	}
	return nil
}

// ProfileNames returns a sorted list of profile names.
func (fc FileConfig) ProfileNames() []string {
	names := make([]string, 0, len(fc.Profiles))
	for name := range fc.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
