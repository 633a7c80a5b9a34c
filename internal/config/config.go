package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"chainnotes-sync-server/internal/blockfrost"
	"chainnotes-sync-server/internal/repository"
	"chainnotes-sync-server/internal/validation"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultMetadataLabel is the transaction metadata label the notes client writes.
const DefaultMetadataLabel = 42819

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Blockfrost BlockfrostConfig `yaml:"blockfrost"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Sync       SyncConfig       `yaml:"sync"`
	JWT        JWTConfig        `yaml:"jwt"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	CORS       CORSConfig       `yaml:"cors"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" envconfig:"PORT"`
	Host            string        `yaml:"host" envconfig:"HOST"`
	Env             string        `yaml:"env" envconfig:"ENV"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
}

// Repository converts the section into the store configuration.
func (d DatabaseConfig) Repository() repository.Config {
	return repository.Config{
		Driver: d.Driver,
		Couch: repository.CouchConfig{
			Host:     d.Host,
			Port:     d.Port,
			User:     d.User,
			Password: d.Password,
			Name:     d.Name,
		},
		SQLitePath: d.SQLitePath,
	}
}

type BlockfrostConfig struct {
	ProjectID  string        `yaml:"project_id" split_words:"true"`
	Network    string        `yaml:"network"`
	BaseURL    string        `yaml:"base_url" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count" split_words:"true"`
}

func (b BlockfrostConfig) Client() blockfrost.Config {
	return blockfrost.Config{
		ProjectID:  b.ProjectID,
		Network:    b.Network,
		BaseURL:    b.BaseURL,
		Timeout:    b.Timeout,
		RetryCount: b.RetryCount,
	}
}

type IndexerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AutoStart        bool          `yaml:"auto_start" split_words:"true"`
	StartBlockHeight int64         `yaml:"start_block_height" split_words:"true"`
	BatchSize        int           `yaml:"batch_size" split_words:"true"`
	PollInterval     time.Duration `yaml:"poll_interval" split_words:"true"`
	PendingInterval  time.Duration `yaml:"pending_interval" split_words:"true"`
	MetadataLabel    int64         `yaml:"metadata_label" split_words:"true"`
	MonitorAddresses []string      `yaml:"monitor_addresses" split_words:"true"`
	StrictAddresses  bool          `yaml:"strict_addresses" split_words:"true"`
}

type SyncConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries" split_words:"true"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Expiration time.Duration `yaml:"expiration"`
}

type WebSocketConfig struct {
	ReadBufferSize   int           `yaml:"read_buffer_size" split_words:"true"`
	WriteBufferSize  int           `yaml:"write_buffer_size" split_words:"true"`
	MaxMessageSize   int64         `yaml:"max_message_size" split_words:"true"`
	WriteWait        time.Duration `yaml:"write_wait" split_words:"true"`
	PongWait         time.Duration `yaml:"pong_wait" split_words:"true"`
	PingPeriod       time.Duration `yaml:"ping_period" split_words:"true"`
	MaxConnPerWallet int           `yaml:"max_conn_per_wallet" split_words:"true"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" split_words:"true"`
	AllowedMethods string `yaml:"allowed_methods" split_words:"true"`
	AllowedHeaders string `yaml:"allowed_headers" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:     repository.DriverCouchDB,
			Host:       "localhost",
			Port:       "5984",
			User:       "admin",
			Password:   "password",
			Name:       "chainnotes",
			SQLitePath: "chainnotes.db",
		},
		Blockfrost: BlockfrostConfig{
			Network:    blockfrost.NetworkPreprod,
			Timeout:    10 * time.Second,
			RetryCount: 3,
		},
		Indexer: IndexerConfig{
			Enabled:         true,
			AutoStart:       true,
			BatchSize:       100,
			PollInterval:    30 * time.Second,
			PendingInterval: 60 * time.Second,
			MetadataLabel:   DefaultMetadataLabel,
		},
		Sync: SyncConfig{
			Enabled:    true,
			Interval:   5 * time.Minute,
			Timeout:    10 * time.Minute,
			MaxRetries: 5,
		},
		JWT: JWTConfig{
			Secret:     "dev-secret-change-in-production",
			Expiration: 24 * time.Hour,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			MaxMessageSize:   512 * 1024,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			MaxConnPerWallet: 5,
		},
		CORS: CORSConfig{
			AllowedOrigins: "*",
			AllowedMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
			AllowedHeaders: "Content-Type,Authorization,X-Request-ID",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers defaults, the optional YAML file, .env and the process
// environment, in that order. An empty file falls back to CONFIG_FILE.
func Load(file string) (*Config, error) {
	godotenv.Load()

	cfg := Default()

	if file == "" {
		file = os.Getenv("CONFIG_FILE")
	}
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	cfg.Indexer.MonitorAddresses = normalizeAddresses(cfg.Indexer.MonitorAddresses)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", file, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	sections := []struct {
		prefix string
		spec   interface{}
	}{
		{"", &c.Server},
		{"DB", &c.Database},
		{"BLOCKFROST", &c.Blockfrost},
		{"INDEXER", &c.Indexer},
		{"SYNC", &c.Sync},
		{"JWT", &c.JWT},
		{"WS", &c.WebSocket},
		{"CORS", &c.CORS},
		{"LOG", &c.Logging},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.spec); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
	}
	return nil
}

func normalizeAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func (c *Config) AddressRules() validation.AddressRules {
	return validation.AddressRules{
		Network: c.Blockfrost.Network,
		Strict:  c.Indexer.StrictAddresses,
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case repository.DriverCouchDB, repository.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if _, ok := blockfrost.BaseURLFor(c.Blockfrost.Network); !ok && c.Blockfrost.BaseURL == "" {
		errs = append(errs, fmt.Errorf("unknown blockfrost network %q", c.Blockfrost.Network))
	}

	if c.Indexer.PollInterval <= 0 {
		errs = append(errs, errors.New("indexer poll interval must be positive"))
	}
	if c.Indexer.PendingInterval <= 0 {
		errs = append(errs, errors.New("indexer pending interval must be positive"))
	}
	if c.Indexer.StartBlockHeight < 0 {
		errs = append(errs, errors.New("indexer start block height must not be negative"))
	}
	if c.Indexer.BatchSize <= 0 || c.Indexer.BatchSize > 100 {
		errs = append(errs, errors.New("indexer batch size must be between 1 and 100"))
	}

	rules := c.AddressRules()
	for _, addr := range c.Indexer.MonitorAddresses {
		if err := rules.CheckAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("monitored address %s: %w", addr, err))
		}
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync interval must be positive"))
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, errors.New("sync timeout must be positive"))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, errors.New("sync max retries must not be negative"))
	}

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}

	return errors.Join(errs...)
}
