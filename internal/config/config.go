// Package config loads server settings from defaults, an optional YAML
// file and STAFFDESK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "STAFFDESK_"

type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string        `yaml:"addr"`
		GRPCAddr           string        `yaml:"grpc_addr"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
		MaxBodyBytes       int64         `yaml:"max_body_bytes"`
		RateRPS            float64       `yaml:"rate_rps"`
		RateBurst          int           `yaml:"rate_burst"`
		// TrustedProxies are addresses or CIDRs allowed to set X-Forwarded-For.
		TrustedProxies     []string      `yaml:"trusted_proxies"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Backend selects identity provider and record store together:
	// memory | postgres | firebase.
	Backend string `yaml:"backend"`

	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"postgres"`

	Firebase struct {
		ProjectID       string `yaml:"project_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`

	Token struct {
		Secret string        `yaml:"secret"`
		Issuer string        `yaml:"issuer"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"token"`

	Lock struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string        `yaml:"addr"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			Prefix   string        `yaml:"prefix"`
			TTL      time.Duration `yaml:"ttl"`
		} `yaml:"redis"`
	} `yaml:"lock"`

	UpstreamTimeout   time.Duration `yaml:"upstream_timeout"`
	VerifyCacheTTL    time.Duration `yaml:"verify_cache_ttl"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	c := &Config{}
	c.App.Env = "dev"
	c.App.LogLevel = "info"
	c.Server.Addr = ":8000"
	c.Server.GRPCAddr = ":9090"
	c.Server.CORSAllowedOrigins = []string{
		"http://localhost:5173",
		"http://localhost:5174",
		"http://localhost:5175",
		"http://localhost:5176",
	}
	c.Server.MaxBodyBytes = 1 << 20
	c.Server.RateRPS = 20
	c.Server.RateBurst = 40
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Backend = "memory"
	c.Token.Issuer = "staffdesk"
	c.Token.TTL = time.Hour
	c.Lock.Kind = "memory"
	c.Lock.Redis.Addr = "localhost:6379"
	c.Lock.Redis.Prefix = "staffdesk:lock:"
	c.Lock.Redis.TTL = 30 * time.Second
	c.UpstreamTimeout = 5 * time.Second
	c.VerifyCacheTTL = 30 * time.Second
	return c
}

// Load reads path (if not empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres backend"))
		}
	case "firebase":
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("firebase.project_id is required for the firebase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Backend != "firebase" && len(c.Token.Secret) < 16 {
		errs = append(errs, errors.New("token.secret must be at least 16 bytes"))
	}
	switch c.Lock.Kind {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown lock kind %q", c.Lock.Kind))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("upstream_timeout must be positive"))
	}
	for _, p := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("server.trusted_proxies: invalid entry %q", p))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	if v, ok := getEnvStr("HTTP_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("GRPC_ADDR"); ok {
		c.Server.GRPCAddr = v
	}
	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvInt("MAX_BODY_BYTES"); ok {
		c.Server.MaxBodyBytes = int64(v)
	}
	if v, ok := getEnvFloat("RATE_RPS"); ok {
		c.Server.RateRPS = v
	}
	if v, ok := getEnvInt("RATE_BURST"); ok {
		c.Server.RateBurst = v
	}
	if v, ok := getEnvCSV("TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = v
	}

	if v, ok := getEnvStr("BACKEND"); ok {
		c.Backend = strings.ToLower(v)
	}
	if v, ok := getEnvStr("PG_DSN"); ok {
		c.Postgres.DSN = v
	}
	if v, ok := getEnvStr("FIREBASE_PROJECT_ID"); ok {
		c.Firebase.ProjectID = v
	}
	if v, ok := getEnvStr("FIREBASE_CREDENTIALS_FILE"); ok {
		c.Firebase.CredentialsFile = v
	}

	if v, ok := getEnvStr("TOKEN_SECRET"); ok {
		c.Token.Secret = v
	}
	if v, ok := getEnvStr("TOKEN_ISSUER"); ok {
		c.Token.Issuer = v
	}
	if v, ok := getEnvDur("TOKEN_TTL"); ok {
		c.Token.TTL = v
	}

	if v, ok := getEnvStr("LOCK_KIND"); ok {
		c.Lock.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Lock.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Lock.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Lock.Redis.DB = v
	}

	if v, ok := getEnvDur("UPSTREAM_TIMEOUT"); ok {
		c.UpstreamTimeout = v
	}
	if v, ok := getEnvDur("VERIFY_CACHE_TTL"); ok {
		c.VerifyCacheTTL = v
	}
	if v, ok := getEnvDur("RECONCILE_INTERVAL"); ok {
		c.ReconcileInterval = v
	}
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
