// Package config loads and validates Quince runtime configuration.
package config

import "time"

// Config represents the complete Quince configuration
type Config struct {
	BaseDir string `yaml:"-"` // Directory containing config file, for resolving relative paths

	// Root is the component directory relative paths resolve against.
	Root string `yaml:"root"`

	Runtime     RuntimeConfig      `yaml:"runtime"`
	Cache       CacheConfig        `yaml:"cache"`
	Session     SessionConfig      `yaml:"session"`
	Datasources []DatasourceConfig `yaml:"datasources"`
	Mail        MailConfig         `yaml:"mail"`
	Files       FilesConfig        `yaml:"files"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// RuntimeConfig bounds one request's execution.
type RuntimeConfig struct {
	MaxDepth int `yaml:"max_depth"` // function/component call nesting limit
	MaxSteps int `yaml:"max_steps"` // executed statement limit per request
}

// CacheConfig holds parse and expression cache settings.
type CacheConfig struct {
	Disabled    bool     `yaml:"disabled"`    // bypass the parse cache (development)
	Expressions int      `yaml:"expressions"` // compiled expression cache size
	Watch       bool     `yaml:"watch"`       // invalidate cached parses on file change
	WatchExts   []string `yaml:"watch_exts"`  // extensions to watch (default: .qml, .xml)
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"` // idle session lifetime (default: 24h)
}

// DatasourceConfig names one SQL datasource. The first entry is the default
// for queries that name none.
type DatasourceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"` // sqlite, mysql or postgres
	DSN    string `yaml:"dsn"`
}

// MailConfig selects and configures the outbound email provider.
type MailConfig struct {
	Provider string        `yaml:"provider"` // "mailgun", "resend", "log" or empty
	From     string        `yaml:"from"`
	Mailgun  MailgunConfig `yaml:"mailgun"`
	Resend   ResendConfig  `yaml:"resend"`
}

// MailgunConfig holds Mailgun credentials.
type MailgunConfig struct {
	APIKey string `yaml:"api_key"`
	Domain string `yaml:"domain"`
	Region string `yaml:"region"` // "us" (default) or "eu"
}

// ResendConfig holds Resend credentials.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// FilesConfig selects the file store backing q:import resolution helpers and
// host file access.
type FilesConfig struct {
	Store string     `yaml:"store"` // "local" (default) or "sftp"
	Local string     `yaml:"local"` // base directory for the local store
	SFTP  SFTPConfig `yaml:"sftp"`
}

// SFTPConfig holds remote file store settings.
type SFTPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	KeyFile    string `yaml:"key_file"`    // private key path; wins over password
	KnownHosts string `yaml:"known_hosts"` // strict host-key checking when set
	Root       string `yaml:"root"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Output string `yaml:"output"` // stderr, stdout, or a file path
	Quiet  bool   `yaml:"quiet"`  // suppress q:log output
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Root: ".",
		Runtime: RuntimeConfig{
			MaxDepth: 64,
			MaxSteps: 1_000_000,
		},
		Cache: CacheConfig{
			Expressions: 1024,
			WatchExts:   []string{".qml", ".xml"},
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Mail: MailConfig{
			Provider: "",
			Mailgun: MailgunConfig{
				Region: "us",
			},
		},
		Files: FilesConfig{
			Store: "local",
		},
		Logging: LoggingConfig{
			Output: "stderr",
		},
	}
}
