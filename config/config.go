package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWT
	Google    Google
	Supabase  Supabase
	Logger    LoggerMode
	Realtime  Realtime
	RateLimit RateLimit
}

type Server struct {
	Port           string
	Environment    string
	AllowedOrigins []string
}

type DBConfig struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
	Path     string // sqlite file
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWT struct {
	Secret    string
	ExpiresIn time.Duration
}

type Google struct {
	ClientID string
}

type Supabase struct {
	URL    string
	Key    string
	Bucket string
}

type LoggerMode struct {
	Development bool
	Level       string
}

type Realtime struct {
	TypingTTL       time.Duration
	StreamHeartbeat time.Duration
}

type RateLimit struct {
	RequestsPerMin int
	MessagesPerMin int
	Burst          int
}

// DSN builds the postgres connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8081")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("DB_PATH", "dating.db")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("SUPABASE_BUCKET", "photos")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TYPING_TTL", "6s")
	v.SetDefault("STREAM_HEARTBEAT", "25s")
	v.SetDefault("RATE_REQUESTS_PER_MIN", 20)
	v.SetDefault("RATE_MESSAGES_PER_MIN", 120)
	v.SetDefault("RATE_BURST", 10)
}

// Load reads an optional .env file, then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return Parse(v)
}

func Parse(v *viper.Viper) (*Config, error) {
	c := &Config{
		Server: Server{
			Port:           v.GetString("PORT"),
			Environment:    v.GetString("APP_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			TimeZone: v.GetString("DB_TIMEZONE"),
			Path:     v.GetString("DB_PATH"),
		},
		Redis: RedisConfig{
			URL:      v.GetString("REDIS_URL"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWT{
			Secret:    v.GetString("JWT_SECRET"),
			ExpiresIn: v.GetDuration("JWT_EXPIRES_IN"),
		},
		Google: Google{ClientID: v.GetString("GOOGLE_CLIENT_ID")},
		Supabase: Supabase{
			URL:    v.GetString("SUPABASE_URL"),
			Key:    v.GetString("SUPABASE_KEY"),
			Bucket: v.GetString("SUPABASE_BUCKET"),
		},
		Logger: LoggerMode{
			Development: v.GetString("APP_ENV") != "production",
			Level:       v.GetString("LOG_LEVEL"),
		},
		Realtime: Realtime{
			TypingTTL:       v.GetDuration("TYPING_TTL"),
			StreamHeartbeat: v.GetDuration("STREAM_HEARTBEAT"),
		},
		RateLimit: RateLimit{
			RequestsPerMin: v.GetInt("RATE_REQUESTS_PER_MIN"),
			MessagesPerMin: v.GetInt("RATE_MESSAGES_PER_MIN"),
			Burst:          v.GetInt("RATE_BURST"),
		},
	}
	if err := c.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Name == "" || c.DB.User == "" {
			return errors.New("DB_NAME and DB_USER are required for postgres")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Realtime.TypingTTL <= 0 {
		return errors.New("TYPING_TTL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
