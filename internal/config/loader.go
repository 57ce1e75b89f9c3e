package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/foodfleet/seedkit/internal/db"
)

// BackupConfig controls where snapshots are written.
type BackupConfig struct {
	// Dir is the object store root on the local filesystem.
	Dir string
	// Prefix is prepended to every snapshot key.
	Prefix string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// SeederConfig bounds ledger queries.
type SeederConfig struct {
	// MaxListLimit caps the page size of execution listings.
	MaxListLimit int
}

// Config aggregates every runtime setting.
type Config struct {
	Database db.Config
	Backup   BackupConfig
	Server   ServerConfig
	Seeder   SeederConfig
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Backup: BackupConfig{
			Dir:    "./backups",
			Prefix: "database-backups",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Seeder: SeederConfig{
			MaxListLimit: 100,
		},
	}
}

// Load reads config.yaml from configPath, falling back to defaults and
// environment overrides (SEEDKIT_DATABASE_HOST and friends).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("SEEDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("backup.dir")
	v.BindEnv("backup.prefix")
	v.BindEnv("server.addr")
	v.BindEnv("server.allowed_origins")
	v.BindEnv("seeder.max_list_limit")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env.
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("backup.dir") {
		cfg.Backup.Dir = v.GetString("backup.dir")
	}
	if v.IsSet("backup.prefix") {
		cfg.Backup.Prefix = v.GetString("backup.prefix")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("seeder.max_list_limit") {
		if limit := v.GetInt("seeder.max_list_limit"); limit > 0 {
			cfg.Seeder.MaxListLimit = limit
		}
	}

	return cfg, nil
}
