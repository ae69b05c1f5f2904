package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Driver string `yaml:"driver" toml:"driver"`
		Path   string `yaml:"path" toml:"path"`
		URL    string `yaml:"url,omitempty" toml:"url"`
	} `yaml:"database" toml:"database"`

	Ingest struct {
		Workers int    `yaml:"workers" toml:"workers"`
		SeedDir string `yaml:"seed_dir" toml:"seed_dir"`
	} `yaml:"ingest" toml:"ingest"`

	Server struct {
		Addr         string `yaml:"addr" toml:"addr"`
		UploadSecret string `yaml:"upload_secret,omitempty" toml:"upload_secret"`
		MaxUploadMB  int64  `yaml:"max_upload_mb" toml:"max_upload_mb"`
	} `yaml:"server" toml:"server"`

	Analyzer struct {
		BaseURL     string   `yaml:"base_url" toml:"base_url"`
		Model       string   `yaml:"model" toml:"model"`
		Temperature float64  `yaml:"temperature" toml:"temperature"`
		Aspects     []string `yaml:"aspects" toml:"aspects"`
	} `yaml:"analyzer" toml:"analyzer"`

	WordCloud struct {
		BaseURL string `yaml:"base_url" toml:"base_url"`
	} `yaml:"wordcloud" toml:"wordcloud"`

	Logging struct {
		Mode  string `yaml:"mode" toml:"mode"`
		Level string `yaml:"level" toml:"level"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Driver = string(DialectSQLite)
	cfg.Database.Path = "./ulasan.db"
	cfg.Ingest.Workers = 1
	cfg.Ingest.SeedDir = "./db/json"
	cfg.Server.Addr = ":8080"
	cfg.Server.MaxUploadMB = 32
	cfg.Analyzer.BaseURL = "http://localhost:11434"
	cfg.Analyzer.Model = "llama3"
	cfg.Analyzer.Temperature = 0.1
	cfg.Analyzer.Aspects = []string{"Fitur", "Konten", "Performa", "Tampilan", "Harga", "Layanan"}
	cfg.Logging.Mode = "development"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig builds the effective configuration: defaults, then the file at
// path (TOML when the extension is .toml, YAML otherwise; a missing file is
// not an error), then .env.local and .env, then the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	case strings.EqualFold(filepath.Ext(path), ".toml"):
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := loadDotenv(".env.local", ".env"); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadDotenv loads each existing file in order. Variables already present in
// the environment are never overwritten, so earlier files take precedence.
func loadDotenv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.Driver = string(DialectPostgres)
		c.Database.URL = v
	}
	if v := os.Getenv("ULASAN_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ULASAN_UPLOAD_SECRET"); v != "" {
		c.Server.UploadSecret = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		c.Analyzer.BaseURL = v
	}
	if v := os.Getenv("ULASAN_WORDCLOUD_URL"); v != "" {
		c.WordCloud.BaseURL = v
	}
}

// DataSource returns the dialect and connection string selected by the
// database section.
func (c *Config) DataSource() (Dialect, string, error) {
	d, ok := ParseDialect(c.Database.Driver)
	if !ok {
		return "", "", fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if d == DialectPostgres {
		if c.Database.URL == "" {
			return "", "", errors.New("database.url is required for the postgres driver")
		}
		return d, c.Database.URL, nil
	}
	if c.Database.Path == "" {
		return "", "", errors.New("database.path is required for the sqlite driver")
	}
	return d, c.Database.Path, nil
}
