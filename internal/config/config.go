package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Database DatabaseConfig `mapstructure:"database"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Winner   WinnerConfig   `mapstructure:"winner"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port       int  `mapstructure:"port"`
	RunIndexer bool `mapstructure:"run_indexer"`
}

type ChainConfig struct {
	Name           string `mapstructure:"name"`
	ChainID        int64  `mapstructure:"chain_id"`
	RPCEndpoint    string `mapstructure:"rpc_endpoint"`
	FactoryAddress string `mapstructure:"factory_address"`
	StartBlock     uint64 `mapstructure:"start_block"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type IndexerConfig struct {
	RangeSize  uint64        `mapstructure:"range_size"`
	StallDelay time.Duration `mapstructure:"stall_delay"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type WinnerConfig struct {
	RunAtHour   int `mapstructure:"run_at_hour"`
	RunAtMinute int `mapstructure:"run_at_minute"`
	MaxAttempts int `mapstructure:"max_attempts"`
	PageSize    int `mapstructure:"page_size"`
	Workers     int `mapstructure:"workers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("INDEXER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.run_indexer", true)
	viper.SetDefault("chain.name", "harmony")
	viper.SetDefault("chain.chain_id", 1666600000)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("indexer.range_size", 1000)
	viper.SetDefault("indexer.stall_delay", "5s")
	viper.SetDefault("indexer.retry_delay", "30s")
	viper.SetDefault("winner.run_at_hour", 0)
	viper.SetDefault("winner.run_at_minute", 10)
	viper.SetDefault("winner.max_attempts", 3)
	viper.SetDefault("winner.page_size", 1000)
	viper.SetDefault("winner.workers", 4)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the startup values the process cannot run without.
func (c *Config) Validate() error {
	if c.Chain.RPCEndpoint == "" {
		return fmt.Errorf("chain.rpc_endpoint is required")
	}
	if c.Chain.FactoryAddress == "" {
		return fmt.Errorf("chain.factory_address is required")
	}
	if c.Chain.StartBlock == 0 {
		return fmt.Errorf("chain.start_block is required")
	}
	if c.Indexer.RangeSize == 0 {
		return fmt.Errorf("indexer.range_size must be positive")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
