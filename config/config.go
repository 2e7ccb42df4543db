package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Users     []User          `yaml:"users"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
}

type ServerConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

// DatabaseConfig selects the record store. Driver is "memory" or "postgres".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// StorageConfig selects the blob store. Driver is "minio", "gcs" or "memory".
type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Minio  MinioConfig `yaml:"minio"`
	GCS    GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type GCSConfig struct {
	Bucket     string `yaml:"bucket"`
	ExpireDays int    `yaml:"expire_days"`
}

// AIConfig selects the completion provider: "http" (OpenAI compatible
// chat completions), "vertex" or "none".
type AIConfig struct {
	Provider  string        `yaml:"provider"`
	APIURL    string        `yaml:"api_url"`
	APIToken  string        `yaml:"api_token"`
	Model     string        `yaml:"model"`
	ProjectID string        `yaml:"project_id"`
	Region    string        `yaml:"region"`
	Timeout   time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	NotificationTopic string   `yaml:"notification_topic"`
}

// RedisConfig enables the shared rate limiter when URL is set
type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type WorkflowConfig struct {
	DefaultOwner  string `yaml:"default_owner"`
	DefaultTenant string `yaml:"default_tenant"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	GlobalConfig = &cfg
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = 32 << 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "minio"
	}
	if c.Storage.Minio.ExpireDays == 0 {
		c.Storage.Minio.ExpireDays = 7
	}
	if c.Storage.GCS.ExpireDays == 0 {
		c.Storage.GCS.ExpireDays = 7
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "none"
	}
	if c.AI.Model == "" {
		switch c.AI.Provider {
		case "vertex":
			c.AI.Model = "gemini-1.5-pro"
		default:
			c.AI.Model = "gpt-4o-mini"
		}
	}
	if c.AI.Region == "" {
		c.AI.Region = "us-central1"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 60 * time.Second
	}
	if c.Kafka.NotificationTopic == "" {
		c.Kafka.NotificationTopic = "dealflow.notifications"
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Workflow.DefaultOwner == "" {
		c.Workflow.DefaultOwner = "system"
	}
	if c.Workflow.DefaultTenant == "" {
		c.Workflow.DefaultTenant = "default"
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
