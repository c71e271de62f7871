package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/HubSync/pkg/mapping"
)

// ErrMissingSetting is returned by Validate for a required setting that is
// empty or out of range.
var ErrMissingSetting = errors.New("missing setting")

// Environment variables that override file settings.
const (
	EnvWebRoot      = "WEBROOT_PATH"
	EnvClientSecret = "HUBSYNC_CLIENT_SECRET"
	EnvPassword     = "HUBSYNC_PASSWORD"
)

// Named types to allow reuse and clearer code
type ContentHubConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	UserName     string        `yaml:"userName"`
	Password     string        `yaml:"password"`
	Timeout      time.Duration `yaml:"timeout"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
}

type AppConfig struct {
	ContentHub ContentHubConfig `yaml:"contentHub"`

	// Folder settings are relative to WebRootPath.
	WebRootPath     string `yaml:"webRootPath"`
	LogsPath        string `yaml:"logsPath"`
	IncomingFolder  string `yaml:"incomingFolder"`
	ProcessedFolder string `yaml:"processedFolder"`

	MaxEntityCountInFile int    `yaml:"maxEntityCountInFile"`
	DeltaOverlapSeconds  int    `yaml:"deltaOverlapSeconds"`
	DeliveryHostURL      string `yaml:"deliveryHostUrl"`
	BaseURL              string `yaml:"baseUrl"`
	NamespaceGUID        string `yaml:"namespaceGuid"`

	Entities    []mapping.EntityMapping `yaml:"entities"`
	MappingsDir string                  `yaml:"mappingsDir"`

	// Schedule is the cron spec of serve mode.
	Schedule string `yaml:"schedule"`

	Status struct {
		Addr string `yaml:"addr"`
	} `yaml:"status"`

	Journal struct {
		Path string `yaml:"path"` // empty disables the journal
	} `yaml:"journal"`

	Archive struct {
		S3 S3Config `yaml:"s3"`
	} `yaml:"archive"`

	Notify struct {
		Kafka KafkaConfig `yaml:"kafka"`
	} `yaml:"notify"`

	Cache struct {
		Definitions int `yaml:"definitions"`
	} `yaml:"cache"`
}

// Default returns a configuration holding the default values.
func Default() AppConfig {
	cfg := AppConfig{
		ContentHub:           ContentHubConfig{Timeout: 100 * time.Second},
		WebRootPath:          ".",
		LogsPath:             "logs",
		IncomingFolder:       "incoming",
		ProcessedFolder:      "processed",
		MaxEntityCountInFile: 1000,
		Schedule:             "0 */15 * * * *",
	}
	cfg.Status.Addr = ":8080"
	cfg.Cache.Definitions = 128
	cfg.Notify.Kafka.BatchTimeout = 10 * time.Millisecond
	return cfg
}

// Parse decodes YAML over the defaults and applies environment overrides.
func Parse(data []byte) (AppConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFile reads and parses a YAML config file. Mappings found in
// MappingsDir are appended to the inline ones.
func LoadFile(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return AppConfig{}, err
	}

	if cfg.MappingsDir != "" {
		dir := cfg.MappingsDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		extra, err := mapping.LoadDir(dir)
		if err != nil {
			return AppConfig{}, err
		}
		cfg.Entities = mapping.Merge(cfg.Entities, extra)
	}
	return cfg, nil
}

// Load reads and parses a YAML config file into an AppConfig struct.
// It will terminate the program if the file is not found or invalid.
func Load(path string) AppConfig {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Fatalf("Config file not found: %s", path)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		log.Fatalf("Error loading config file: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

// ApplyEnv overrides settings from the environment.
func (c *AppConfig) ApplyEnv() {
	if v := os.Getenv(EnvWebRoot); v != "" {
		c.WebRootPath = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.ContentHub.ClientSecret = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.ContentHub.Password = v
	}
}

// Validate checks the settings a run cannot do without.
func (c *AppConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"contentHub.endpoint", c.ContentHub.Endpoint},
		{"contentHub.clientId", c.ContentHub.ClientID},
		{"contentHub.clientSecret", c.ContentHub.ClientSecret},
		{"contentHub.userName", c.ContentHub.UserName},
		{"contentHub.password", c.ContentHub.Password},
		{"baseUrl", c.BaseURL},
		{"deliveryHostUrl", c.DeliveryHostURL},
		{"namespaceGuid", c.NamespaceGUID},
		{"incomingFolder", c.IncomingFolder},
		{"processedFolder", c.ProcessedFolder},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingSetting, r.name)
		}
	}

	if c.MaxEntityCountInFile <= 0 {
		return fmt.Errorf("%w: maxEntityCountInFile must be positive", ErrMissingSetting)
	}
	if c.DeltaOverlapSeconds < 0 {
		return fmt.Errorf("%w: deltaOverlapSeconds must not be negative", ErrMissingSetting)
	}
	if _, err := c.Namespace(); err != nil {
		return err
	}

	s3 := c.Archive.S3
	if s3.Enabled && (s3.Bucket == "" || s3.Region == "") {
		return fmt.Errorf("%w: archive.s3.bucket and archive.s3.region", ErrMissingSetting)
	}
	k := c.Notify.Kafka
	if k.Enabled && (len(k.Brokers) == 0 || k.Topic == "") {
		return fmt.Errorf("%w: notify.kafka.brokers and notify.kafka.topic", ErrMissingSetting)
	}

	for _, m := range c.Entities {
		if m.EntityDefinition == "" {
			continue
		}
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Namespace parses NamespaceGUID.
func (c *AppConfig) Namespace() (uuid.UUID, error) {
	ns, err := uuid.Parse(c.NamespaceGUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid namespaceGuid %q: %w", c.NamespaceGUID, err)
	}
	return ns, nil
}

// DeltaOverlap returns DeltaOverlapSeconds as a duration.
func (c *AppConfig) DeltaOverlap() time.Duration {
	return time.Duration(c.DeltaOverlapSeconds) * time.Second
}

// IncomingPath is the folder new chunk files are written to.
func (c *AppConfig) IncomingPath() string {
	return filepath.Join(c.WebRootPath, c.IncomingFolder)
}

// ProcessedPath is the folder the downstream importer moves files to.
func (c *AppConfig) ProcessedPath() string {
	return filepath.Join(c.WebRootPath, c.ProcessedFolder)
}

// LogsDir is the folder of the per-run log files.
func (c *AppConfig) LogsDir() string {
	return filepath.Join(c.WebRootPath, c.LogsPath)
}
