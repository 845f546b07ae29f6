// Package config loads the kaizen configuration from an optional YAML file,
// KAIZEN_* environment variables and the legacy variable names the
// deployment scripts still export.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full effective configuration.
type Config struct {
	Log             LogConfig      `mapstructure:"log" yaml:"log"`
	Database        DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth            AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Edge            EdgeConfig     `mapstructure:"edge" yaml:"edge"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// DatabaseConfig selects the credential store. When DSN is empty and the
// driver is mysql, the DSN is assembled from the discrete fields.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	TLS             TLSConfig     `mapstructure:"tls" yaml:"tls"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// TLSConfig configures the MySQL TLS link.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	CAPath             string `mapstructure:"ca_path" yaml:"ca_path"`
	CABase64           string `mapstructure:"ca_base64" yaml:"ca_base64"`
	RejectUnauthorized bool   `mapstructure:"reject_unauthorized" yaml:"reject_unauthorized"`
}

// AuthConfig configures the auth service role.
type AuthConfig struct {
	Listen        string        `mapstructure:"listen" yaml:"listen"`
	Pepper        string        `mapstructure:"pepper" yaml:"pepper"`
	HMACSecret    string        `mapstructure:"hmac_secret" yaml:"hmac_secret"`
	SignatureSkew time.Duration `mapstructure:"signature_skew" yaml:"signature_skew"`
	JWT           JWTConfig     `mapstructure:"jwt" yaml:"jwt"`
	Lockout       LockoutConfig `mapstructure:"lockout" yaml:"lockout"`
	ReportCache   time.Duration `mapstructure:"report_cache_ttl" yaml:"report_cache_ttl"`
	CORSOrigins   []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// JWTConfig configures session token minting.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	Issuer     string        `mapstructure:"issuer" yaml:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
}

// LockoutConfig configures brute-force accounting.
type LockoutConfig struct {
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
	Window    time.Duration `mapstructure:"window" yaml:"window"`
	Duration  time.Duration `mapstructure:"duration" yaml:"duration"`
}

// EdgeConfig configures the browser-facing edge role.
type EdgeConfig struct {
	Listen          string          `mapstructure:"listen" yaml:"listen"`
	AuthURL         string          `mapstructure:"auth_url" yaml:"auth_url"`
	HMACSecret      string          `mapstructure:"hmac_secret" yaml:"hmac_secret"`
	JWTVerifySecret string          `mapstructure:"jwt_verify_secret" yaml:"jwt_verify_secret"`
	JWTIssuer       string          `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	CORSOrigins     []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
	RequireSession  bool            `mapstructure:"require_session" yaml:"require_session"`
	Cookie          CookieConfig    `mapstructure:"cookie" yaml:"cookie"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// CookieConfig configures the session cookies.
type CookieConfig struct {
	Domain     string `mapstructure:"domain" yaml:"domain"`
	Secure     bool   `mapstructure:"secure" yaml:"secure"`
	SameSite   string `mapstructure:"same_site" yaml:"same_site"`
	HostPrefix bool   `mapstructure:"host_prefix" yaml:"host_prefix"`
}

// RateLimitConfig configures the per-IP limiter on /auth/. An empty
// RedisAddr keeps the counters in process memory.
type RateLimitConfig struct {
	Requests      int           `mapstructure:"requests" yaml:"requests"`
	Window        time.Duration `mapstructure:"window" yaml:"window"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
}

// defaults doubles as the set of keys viper resolves from the environment.
var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"database.driver":                  "mysql",
	"database.dsn":                     "",
	"database.host":                    "",
	"database.port":                    3306,
	"database.user":                    "",
	"database.password":                "",
	"database.name":                    "",
	"database.tls.enabled":             false,
	"database.tls.ca_path":             "",
	"database.tls.ca_base64":           "",
	"database.tls.reject_unauthorized": true,
	"database.max_open_conns":          10,
	"database.max_idle_conns":          5,
	"database.conn_max_lifetime":       "5m",
	"database.query_timeout":           "15s",
	"database.connect_timeout":         "10s",
	"database.read_timeout":            "20s",
	"database.write_timeout":           "20s",

	"auth.listen":            "127.0.0.1:8081",
	"auth.pepper":            "",
	"auth.hmac_secret":       "",
	"auth.signature_skew":    "5m",
	"auth.jwt.secret":        "",
	"auth.jwt.issuer":        "kaizen-auth",
	"auth.jwt.access_ttl":    "15m",
	"auth.jwt.refresh_ttl":   "30d",
	"auth.lockout.threshold": 5,
	"auth.lockout.window":    "15m",
	"auth.lockout.duration":  "15m",
	"auth.report_cache_ttl":  "30s",
	"auth.cors_origins":      []string{},

	"edge.listen":                    ":3001",
	"edge.auth_url":                  "http://127.0.0.1:8081",
	"edge.hmac_secret":               "",
	"edge.jwt_verify_secret":         "",
	"edge.jwt_issuer":                "kaizen-auth",
	"edge.cors_origins":              []string{},
	"edge.require_session":           true,
	"edge.cookie.domain":             "",
	"edge.cookie.secure":             true,
	"edge.cookie.same_site":          "strict",
	"edge.cookie.host_prefix":        false,
	"edge.rate_limit.requests":       20,
	"edge.rate_limit.window":         "1m",
	"edge.rate_limit.redis_addr":     "",
	"edge.rate_limit.redis_password": "",
	"edge.rate_limit.redis_db":       0,

	"shutdown_timeout": "15s",
}

// legacyEnv maps config keys to the unprefixed variable names accepted in
// addition to KAIZEN_<KEY>.
var legacyEnv = map[string][]string{
	"database.host":                    {"MYSQL_HOST"},
	"database.port":                    {"MYSQL_PORT"},
	"database.user":                    {"MYSQL_USER"},
	"database.password":                {"MYSQL_PASSWORD"},
	"database.name":                    {"MYSQL_DB", "MYSQL_DATABASE"},
	"database.tls.ca_path":             {"MYSQL_SSL_CA_PATH"},
	"database.tls.ca_base64":           {"MYSQL_SSL_CA_BASE64"},
	"database.tls.reject_unauthorized": {"MYSQL_SSL_REJECT_UNAUTHORIZED"},
	"auth.pepper":                      {"AUTH_PEPPER"},
	"auth.hmac_secret":                 {"EDGE_HMAC_SECRET"},
	"auth.jwt.secret":                  {"JWT_SECRET"},
	"auth.jwt.access_ttl":              {"JWT_ACCESS_TTL"},
	"auth.jwt.refresh_ttl":             {"JWT_REFRESH_TTL"},
	"edge.hmac_secret":                 {"EDGE_HMAC_SECRET"},
	"edge.jwt_verify_secret":           {"JWT_VERIFY_SECRET"},
	"edge.cookie.domain":               {"JWT_COOKIE_DOMAIN"},
	"edge.cookie.secure":               {"JWT_COOKIE_SECURE"},
	"edge.cors_origins":                {"CORS_ORIGIN"},
	"edge.auth_url":                    {"AUTH_SERVICE_URL"},
}

// Setup prepares v: defaults, env prefix, legacy names and the config file.
// An empty path searches ./kaizen.yaml and $HOME/.kaizen/kaizen.yaml; a
// missing file is not an error unless path was given explicitly.
func Setup(v *viper.Viper, path string) error {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("KAIZEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{"KAIZEN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("kaizen")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.kaizen")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load decodes the effective configuration out of a prepared viper.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook(),
		listHook(),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Edge.JWTVerifySecret == "" {
		cfg.Edge.JWTVerifySecret = cfg.Auth.JWT.Secret
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	cfg, err := Load(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ParseDuration accepts Go durations, a plain number of seconds, and a
// whole number of days with a d suffix ("30d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func durationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			return ParseDuration(data.(string))
		case reflect.Int, reflect.Int64, reflect.Int32:
			// bare YAML numbers are seconds, like numeric env values
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		}
		return data, nil
	}
}

// listHook splits comma-separated env values into string slices.
func listHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		var out []string
		for _, part := range strings.Split(data.(string), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
}
