package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Scanner struct {
		MaxConcurrent  int    `yaml:"maxConcurrent"`
		TempDir        string `yaml:"tempDir"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
	} `yaml:"scanner"`

	Nuclei struct {
		Path          string `yaml:"path"`
		TemplatesPath string `yaml:"templatesPath"`
		RateLimit     int    `yaml:"rateLimit"`
		BulkSize      int    `yaml:"bulkSize"`
	} `yaml:"nuclei"`

	Websocket struct {
		PingIntervalSeconds int `yaml:"pingIntervalSeconds"`
		StaleAfterSeconds   int `yaml:"staleAfterSeconds"`
	} `yaml:"websocket"`

	AI struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
}

// Load reads the yaml config file and applies defaults plus env overrides
// for secrets.
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
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Scanner.MaxConcurrent <= 0 {
		c.Scanner.MaxConcurrent = 5
	}
	if c.Scanner.TempDir == "" {
		c.Scanner.TempDir = "./temp"
	}
	if c.Scanner.TimeoutSeconds <= 0 {
		c.Scanner.TimeoutSeconds = 300
	}
	if c.Nuclei.Path == "" {
		c.Nuclei.Path = "nuclei"
	}
	if c.Nuclei.RateLimit <= 0 {
		c.Nuclei.RateLimit = 150
	}
	if c.Nuclei.BulkSize <= 0 {
		c.Nuclei.BulkSize = 25
	}
	if c.Websocket.PingIntervalSeconds <= 0 {
		c.Websocket.PingIntervalSeconds = 30
	}
	if c.Websocket.StaleAfterSeconds <= 0 {
		c.Websocket.StaleAfterSeconds = 60
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("NUCLEI_PATH"); v != "" {
		c.Nuclei.Path = v
	}
}

// MySQLDSN builds the DSN for the mysql driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the DSN for the pq driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
