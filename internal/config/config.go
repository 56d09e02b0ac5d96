package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL     MySQLConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Migrate   bool
	HTTPAddr  string
	Nginx     NginxConfig
	ACME      ACMEConfig
	Scheduler SchedulerConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// NginxConfig holds paths and commands for driving the reverse proxy
type NginxConfig struct {
	AvailableDir string // authored vhost files
	EnabledDir   string // symlinks picked up by the nginx config loader
	ChallengeDir string // temporary ACME challenge vhosts
	Bin          string // nginx binary, used for -t and -s reload
}

// ACMEConfig holds the external ACME client configuration
type ACMEConfig struct {
	Bin             string // external ACME client binary (certbot-compatible verbs)
	CertDir         string // issued material root, live/<domain>/fullchain.pem
	WebrootDir      string // HTTP-01 webroot served at /.well-known/acme-challenge/
	Email           string // default contact email, empty means register without email
	ProbeTimeoutSec int    // reachability pre-flight timeout
	ProbeEnabled    bool
}

// SchedulerConfig holds renewal scheduler configuration
type SchedulerConfig struct {
	Enabled         bool
	HourUTC         int // daily tick fires at this UTC hour
	RenewBeforeDays int // renewal horizon
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "proxyman"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Nginx: NginxConfig{
			AvailableDir: getEnv("NGINX_AVAILABLE_DIR", "/etc/nginx/sites-available"),
			EnabledDir:   getEnv("NGINX_ENABLED_DIR", "/etc/nginx/sites-enabled"),
			ChallengeDir: getEnv("NGINX_CHALLENGE_DIR", "/etc/nginx/challenge.d"),
			Bin:          getEnv("NGINX_BIN", "nginx"),
		},
		ACME: ACMEConfig{
			Bin:             getEnv("ACME_BIN", "certbot"),
			CertDir:         getEnv("ACME_CERT_DIR", "/etc/letsencrypt"),
			WebrootDir:      getEnv("ACME_WEBROOT_DIR", "/var/www/acme"),
			Email:           getEnv("ACME_EMAIL", ""),
			ProbeTimeoutSec: getEnvInt("ACME_PROBE_TIMEOUT_SEC", 4),
			ProbeEnabled:    getEnv("ACME_PROBE_ENABLED", "1") == "1",
		},
		Scheduler: SchedulerConfig{
			Enabled:         getEnv("SCHEDULER_ENABLED", "1") == "1",
			HourUTC:         getEnvInt("SCHEDULER_HOUR_UTC", 3),
			RenewBeforeDays: getEnvInt("SCHEDULER_RENEW_BEFORE_DAYS", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromINI loads configuration from an INI file with environment
// variable override, priority: ENV > INI > default.
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "proxyman"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		Nginx: NginxConfig{
			AvailableDir: getValue("NGINX_AVAILABLE_DIR", "nginx", "available_dir", "/etc/nginx/sites-available"),
			EnabledDir:   getValue("NGINX_ENABLED_DIR", "nginx", "enabled_dir", "/etc/nginx/sites-enabled"),
			ChallengeDir: getValue("NGINX_CHALLENGE_DIR", "nginx", "challenge_dir", "/etc/nginx/challenge.d"),
			Bin:          getValue("NGINX_BIN", "nginx", "bin", "nginx"),
		},
		ACME: ACMEConfig{
			Bin:             getValue("ACME_BIN", "acme", "bin", "certbot"),
			CertDir:         getValue("ACME_CERT_DIR", "acme", "cert_dir", "/etc/letsencrypt"),
			WebrootDir:      getValue("ACME_WEBROOT_DIR", "acme", "webroot_dir", "/var/www/acme"),
			Email:           getValue("ACME_EMAIL", "acme", "email", ""),
			ProbeTimeoutSec: getValueInt("ACME_PROBE_TIMEOUT_SEC", "acme", "probe_timeout_sec", 4),
			ProbeEnabled:    getValueBool("ACME_PROBE_ENABLED", "acme", "probe_enabled", true),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getValueBool("SCHEDULER_ENABLED", "scheduler", "enabled", true),
			HourUTC:         getValueInt("SCHEDULER_HOUR_UTC", "scheduler", "hour_utc", 3),
			RenewBeforeDays: getValueInt("SCHEDULER_RENEW_BEFORE_DAYS", "scheduler", "renew_before_days", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Scheduler.HourUTC < 0 || c.Scheduler.HourUTC > 23 {
		return fmt.Errorf("scheduler hour must be within 0-23, got %d", c.Scheduler.HourUTC)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
