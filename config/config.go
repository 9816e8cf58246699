package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.json"

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Kafka    KafkaConfig    `json:"kafka" yaml:"kafka"`
	Mail     MailConfig     `json:"mail" yaml:"mail"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr         string   `json:"addr" yaml:"addr"`
	PublicURL    string   `json:"public_url" yaml:"public_url"` // used for links in notification emails
	AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // postgres, sqlite
	DSN    string `json:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

type KafkaConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Brokers       []string `json:"brokers" yaml:"brokers"`
	Topic         string   `json:"topic" yaml:"topic"`
	GroupID       string   `json:"group_id" yaml:"group_id"`
	ConsumeAudit  bool     `json:"consume_audit" yaml:"consume_audit"`
	Username      string   `json:"username" yaml:"username"`
	Password      string   `json:"password" yaml:"password"`
	SASLMechanism string   `json:"sasl_mechanism" yaml:"sasl_mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	UseTLS        bool     `json:"use_tls" yaml:"use_tls"`
	CertFile      string   `json:"cert_file" yaml:"cert_file"`
	KeyFile       string   `json:"key_file" yaml:"key_file"`
	CAFile        string   `json:"ca_file" yaml:"ca_file"`
}

type MailConfig struct {
	APIKey      string   `json:"api_key" yaml:"api_key"` // empty disables email notifications
	BaseURL     string   `json:"base_url" yaml:"base_url"`
	AdminEmail  string   `json:"admin_email" yaml:"admin_email"`
	SenderName  string   `json:"sender_name" yaml:"sender_name"`
	SenderEmail string   `json:"sender_email" yaml:"sender_email"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
}

type OAuthProvider struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
}

type AuthConfig struct {
	JWTSecret     string   `json:"jwt_secret" yaml:"jwt_secret"`
	TokenExpiry   int      `json:"token_expiry" yaml:"token_expiry"`     // in hours
	RefreshExpiry int      `json:"refresh_expiry" yaml:"refresh_expiry"` // in hours
	AdminEmails   []string `json:"admin_emails" yaml:"admin_emails"`     // allowed to sign in via OAuth
	OAuth         struct {
		Google OAuthProvider `json:"google" yaml:"google"`
		GitHub OAuthProvider `json:"github" yaml:"github"`
	} `json:"oauth" yaml:"oauth"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json, console
}

// Duration accepts "5s" style strings in both JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration: %s", b)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// LoadConfig reads the file at path (DefaultPath when empty), applies
// environment overrides and defaults, then validates.
func LoadConfig(path string) (config Config, err error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}
	config.applyEnv()
	config.applyDefaults()
	return config, config.Validate()
}

func (c *Config) applyEnv() {
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Mail.APIKey, "BREVO_API_KEY")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Server.PublicURL, "PUBLIC_URL")
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			c.Server.Addr = ":" + port
		}
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
		c.Kafka.Enabled = true
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "https://equisaddles.com"
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat.events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "chat-audit"
	}
	if c.Mail.BaseURL == "" {
		c.Mail.BaseURL = "https://api.brevo.com"
	}
	if c.Mail.AdminEmail == "" {
		c.Mail.AdminEmail = "equisaddles@gmail.com"
	}
	if c.Mail.SenderName == "" {
		c.Mail.SenderName = "Equi Saddles - Chat Support"
	}
	if c.Mail.SenderEmail == "" {
		c.Mail.SenderEmail = "equisaddles@gmail.com"
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = Duration(5 * time.Second)
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 12
	}
	if c.Auth.RefreshExpiry == 0 {
		c.Auth.RefreshExpiry = 24 * 7
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// IsAdminEmail reports whether email is allowed to sign in to the back office via OAuth.
func (a *AuthConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, allowed := range a.AdminEmails {
		if strings.ToLower(strings.TrimSpace(allowed)) == email {
			return true
		}
	}
	return false
}
