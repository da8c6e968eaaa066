package config

import (
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	DatabaseURL string `mapstructure:"database_url"`
}

// GeneratorConfig holds the settings the batch executor and the client
// validate against.
type GeneratorConfig struct {
	BatchSize        int     `mapstructure:"batch_size"`
	MaxOrders        int     `mapstructure:"max_orders"`
	DateRange        int     `mapstructure:"date_range"`
	ProductsPerOrder int     `mapstructure:"products_per_order"`
	ProductBatchSize int     `mapstructure:"product_batch_size"`
	MaxProducts      int     `mapstructure:"max_products"`
	PlaceholderImage string  `mapstructure:"placeholder_image"`
	PriceMin         float64 `mapstructure:"price_min"`
	PriceMax         float64 `mapstructure:"price_max"`
}

type ExportConfig struct {
	Dir       string `mapstructure:"dir"`
	UploadDir string `mapstructure:"upload_dir"`
	BaseURL   string `mapstructure:"base_url"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ArtifactConfig struct {
	Backend string `mapstructure:"backend"`
}

type MinioConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Bucket    string        `mapstructure:"bucket"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	JWTSecret string          `mapstructure:"jwt_secret"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Store     StoreConfig     `mapstructure:"store"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Export    ExportConfig    `mapstructure:"export"`
	Sessions  SessionConfig   `mapstructure:"sessions"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Artifacts ArtifactConfig  `mapstructure:"artifacts"`
	Minio     MinioConfig     `mapstructure:"minio"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	config, err := Parse(v)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return config
}

// Parse unmarshals an already populated viper instance, applying BULKGEN_
// environment overrides and fallback defaults.
func Parse(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("BULKGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"jwt_secret", "store.database_url", "admin.password_hash", "redis.password", "minio.secret_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "failed to bind %s", key)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	applyDefaults(&config)

	if config.JWTSecret == "" {
		return nil, errors.New("jwt_secret must be set")
	}
	if config.Store.Backend == "postgres" && config.Store.DatabaseURL == "" {
		return nil, errors.New("store.database_url must be set for the postgres backend")
	}
	if config.Generator.PriceMin > config.Generator.PriceMax {
		return nil, errors.Errorf("generator.price_min %.2f exceeds price_max %.2f",
			config.Generator.PriceMin, config.Generator.PriceMax)
	}
	return &config, nil
}

// Fallback defaults
func applyDefaults(c *Config) {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}

	g := &c.Generator
	if g.BatchSize == 0 {
		g.BatchSize = 50
	}
	if g.MaxOrders == 0 {
		g.MaxOrders = 1000000
	}
	if g.DateRange == 0 {
		g.DateRange = 90
	}
	if g.ProductsPerOrder == 0 {
		g.ProductsPerOrder = 5
	}
	if g.ProductBatchSize == 0 {
		g.ProductBatchSize = 20
	}
	if g.MaxProducts == 0 {
		g.MaxProducts = 1000
	}
	if g.PriceMin == 0 {
		g.PriceMin = 10
	}
	if g.PriceMax == 0 {
		g.PriceMax = 100
	}

	if c.Export.Dir == "" {
		c.Export.Dir = "./data/exports"
	}
	if c.Export.UploadDir == "" {
		c.Export.UploadDir = "./data/uploads"
	}
	if c.Export.BaseURL == "" {
		c.Export.BaseURL = "http://localhost:" + c.Server.Port
	}

	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 24 * time.Hour
	}
	if c.Sessions.SweepInterval == 0 {
		c.Sessions.SweepInterval = time.Hour
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "local"
	}
	if c.Minio.Bucket == "" {
		c.Minio.Bucket = "bulkgen-exports"
	}
	if c.Minio.URLExpiry == 0 {
		c.Minio.URLExpiry = time.Hour
	}
	if c.Temporal.HostPort == "" {
		c.Temporal.HostPort = "localhost:7233"
	}
	if c.Temporal.Namespace == "" {
		c.Temporal.Namespace = "default"
	}
	if c.Temporal.TaskQueue == "" {
		c.Temporal.TaskQueue = "BULKGEN_TASK_QUEUE"
	}
}
