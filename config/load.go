package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation. If configPath
// is empty, it searches default locations.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the
// resolved path, for callers that report the config file location.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.BaseDir = baseDir

	// Resolve relative paths against the config file's directory.
	if cfg.Root != "" && !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(baseDir, cfg.Root)
	}
	if cfg.Files.Local != "" && !filepath.IsAbs(cfg.Files.Local) {
		cfg.Files.Local = filepath.Join(baseDir, cfg.Files.Local)
	}
	if cfg.Files.SFTP.KeyFile != "" && !filepath.IsAbs(cfg.Files.SFTP.KeyFile) {
		cfg.Files.SFTP.KeyFile = filepath.Join(baseDir, cfg.Files.SFTP.KeyFile)
	}
	for i := range cfg.Datasources {
		ds := &cfg.Datasources[i]
		if ds.Driver == "sqlite" && ds.DSN != "" && !filepath.IsAbs(ds.DSN) && !strings.Contains(ds.DSN, ":") {
			ds.DSN = filepath.Join(baseDir, ds.DSN)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, "", err
	}

	return cfg, absPath, nil
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Runtime.MaxDepth < 1 {
		errs = append(errs, fmt.Sprintf("runtime.max_depth must be positive, got %d", cfg.Runtime.MaxDepth))
	}
	if cfg.Runtime.MaxSteps < 1 {
		errs = append(errs, fmt.Sprintf("runtime.max_steps must be positive, got %d", cfg.Runtime.MaxSteps))
	}
	if cfg.Cache.Expressions < 1 {
		errs = append(errs, fmt.Sprintf("cache.expressions must be positive, got %d", cfg.Cache.Expressions))
	}
	if cfg.Session.TTL <= 0 {
		errs = append(errs, "session.ttl must be positive")
	}

	seen := map[string]bool{}
	for i, ds := range cfg.Datasources {
		if ds.Name == "" {
			errs = append(errs, fmt.Sprintf("datasources[%d]: name is required", i))
		}
		if seen[ds.Name] {
			errs = append(errs, fmt.Sprintf("datasources[%d]: duplicate name %q", i, ds.Name))
		}
		seen[ds.Name] = true
		switch ds.Driver {
		case "sqlite", "mysql", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("datasources[%d]: unsupported driver %q (sqlite, mysql, postgres)", i, ds.Driver))
		}
		if ds.DSN == "" {
			errs = append(errs, fmt.Sprintf("datasources[%d]: dsn is required", i))
		}
	}

	switch cfg.Mail.Provider {
	case "", "log":
	case "mailgun":
		if cfg.Mail.Mailgun.APIKey == "" || cfg.Mail.Mailgun.Domain == "" {
			errs = append(errs, "mail: mailgun selected but api_key or domain not configured")
		}
	case "resend":
		if cfg.Mail.Resend.APIKey == "" {
			errs = append(errs, "mail: resend selected but api_key not configured")
		}
	default:
		errs = append(errs, fmt.Sprintf("mail: unknown provider %q (mailgun, resend, log)", cfg.Mail.Provider))
	}

	switch cfg.Files.Store {
	case "", "local":
	case "sftp":
		if cfg.Files.SFTP.Host == "" || cfg.Files.SFTP.User == "" {
			errs = append(errs, "files: sftp selected but host or user not configured")
		}
	default:
		errs = append(errs, fmt.Sprintf("files: unknown store %q (local, sftp)", cfg.Files.Store))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > QUINCE_CONFIG env > ./quince.yaml > ~/.config/quince/quince.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("QUINCE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("QUINCE_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("quince.yaml"); err == nil {
		return "quince.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "quince", "quince.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", fmt.Errorf("no config file found (tried QUINCE_CONFIG, quince.yaml, ~/.config/quince/quince.yaml)")
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with
// environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}
