package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Cache       CacheConfig       `yaml:"cache"`
	Ports       PortsConfig       `yaml:"ports"`
	Paths       PathsConfig       `yaml:"paths"`
	DefaultUser DefaultUserConfig `yaml:"default_user"`
}

type ServerConfig struct {
	Host        string    `yaml:"host"`
	Port        int       `yaml:"port"`
	Mode        string    `yaml:"mode"`
	Workers     int64     `yaml:"workers"`
	CORSOrigins []string  `yaml:"cors_origins"`
	TLS         TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type   string       `yaml:"type"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	MySQL  MySQLConfig  `yaml:"mysql"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Charset  string `yaml:"charset"`
}

type AuthConfig struct {
	TokenTTLMinutes  int `yaml:"token_ttl_minutes"`
	SessionCacheSize int `yaml:"session_cache_size"`
	BcryptCost       int `yaml:"bcrypt_cost"`
}

type CacheConfig struct {
	AppCacheSize int `yaml:"app_cache_size"`
}

// PortsConfig holds the starting ports handed out when the app table is empty.
type PortsConfig struct {
	Rest int `yaml:"rest"`
	WS   int `yaml:"ws"`
	Prof int `yaml:"prof"`
}

type PathsConfig struct {
	Temp  string `yaml:"temp"`
	Apps  string `yaml:"apps"`
	Audit string `yaml:"audit"`
}

type DefaultUserConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load reads the configuration file and environment variables
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	if dbType := os.Getenv("AUPANEL_DB_TYPE"); dbType != "" {
		cfg.Database.Type = dbType
	}

	if dbPath := os.Getenv("AUPANEL_DB_PATH"); dbPath != "" {
		cfg.Database.SQLite.Path = dbPath
	}

	if mysqlHost := os.Getenv("AUPANEL_MYSQL_HOST"); mysqlHost != "" {
		cfg.Database.MySQL.Host = mysqlHost
	}

	if mysqlUser := os.Getenv("AUPANEL_MYSQL_USER"); mysqlUser != "" {
		cfg.Database.MySQL.Username = mysqlUser
	}

	if mysqlPass := os.Getenv("AUPANEL_MYSQL_PASSWORD"); mysqlPass != "" {
		cfg.Database.MySQL.Password = mysqlPass
	}

	if mysqlDB := os.Getenv("AUPANEL_MYSQL_DATABASE"); mysqlDB != "" {
		cfg.Database.MySQL.Database = mysqlDB
	}

	if appsDir := os.Getenv("AUPANEL_APPS_DIR"); appsDir != "" {
		cfg.Paths.Apps = appsDir
	}

	if tempDir := os.Getenv("AUPANEL_TEMP_DIR"); tempDir != "" {
		cfg.Paths.Temp = tempDir
	}

	if pass := os.Getenv("AUPANEL_DEFAULT_PASSWORD"); pass != "" {
		cfg.DefaultUser.Password = pass
	}

	if port := os.Getenv("AUPANEL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	applyDefaults(&cfg)

	// Ensure data directory exists for SQLite
	if cfg.Database.Type == "sqlite" {
		dataDir := filepath.Dir(cfg.Database.SQLite.Path)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Validate MySQL configuration if MySQL is selected
	if cfg.Database.Type == "mysql" {
		if cfg.Database.MySQL.Username == "" {
			return nil, fmt.Errorf("MySQL username is required")
		}
		if cfg.Database.MySQL.Database == "" {
			return nil, fmt.Errorf("MySQL database name is required")
		}
	}

	// Ensure the working directories exist
	for _, dir := range []string{cfg.Paths.Temp, cfg.Paths.Apps, cfg.Paths.Audit} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = 10
	}
	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = 60
	}
	if cfg.Auth.SessionCacheSize <= 0 {
		cfg.Auth.SessionCacheSize = 1024
	}
	if cfg.Auth.BcryptCost <= 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Cache.AppCacheSize <= 0 {
		cfg.Cache.AppCacheSize = 1024
	}
	if cfg.Paths.Temp == "" {
		cfg.Paths.Temp = os.TempDir()
	}
}
