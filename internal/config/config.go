package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Session     SessionConfig     `mapstructure:"session"`
	Security    SecurityConfig    `mapstructure:"security"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Ticket      TicketConfig      `mapstructure:"ticket"`
	Email       EmailConfig       `mapstructure:"email"`
	Push        PushConfig        `mapstructure:"push"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Runner      RunnerConfig      `mapstructure:"runner"`
}

type AppConfig struct {
	Name            string `mapstructure:"name"`
	Env             string `mapstructure:"env"`
	Timezone        string `mapstructure:"timezone"`
	HelpdeskTitle   string `mapstructure:"helpdesk_title"`
	HelpdeskURL     string `mapstructure:"helpdesk_url"`
	MaintenanceMode bool   `mapstructure:"maintenance_mode"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxPostSize caps the request body; larger posts get the "maxpost" error.
	MaxPostSize int64 `mapstructure:"max_post_size"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	Secure     bool          `mapstructure:"secure"`
	HTTPOnly   bool          `mapstructure:"http_only"`
	SameSite   string        `mapstructure:"same_site"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// SecurityConfig mirrors the HESK "Security" settings block.
type SecurityConfig struct {
	// Flood is the minimum number of seconds between two replies from one session. 0 disables it.
	Flood int `mapstructure:"flood"`
	// AttemptLimit is the attempt count at which an IP is locked out.
	AttemptLimit int `mapstructure:"attempt_limit"`
	// AttemptBanMin is the lockout length in minutes.
	AttemptBanMin int `mapstructure:"attempt_banmin"`
	// EmailViewTicket requires the customer email to match the ticket.
	EmailViewTicket  bool          `mapstructure:"email_view_ticket"`
	SequentialWindow time.Duration `mapstructure:"sequential_window"`
	SequentialLimit  int           `mapstructure:"sequential_limit"`
}

// FloodInterval returns the flood setting as a duration.
func (s SecurityConfig) FloodInterval() time.Duration {
	return time.Duration(s.Flood) * time.Second
}

// BanDuration returns the lockout length as a duration.
func (s SecurityConfig) BanDuration() time.Duration {
	return time.Duration(s.AttemptBanMin) * time.Minute
}

type AttachmentsConfig struct {
	Use          bool          `mapstructure:"use"`
	MaxNumber    int           `mapstructure:"max_number"`
	MaxSize      int64         `mapstructure:"max_size"`
	AllowedTypes []string      `mapstructure:"allowed_types"`
	TempTTL      time.Duration `mapstructure:"temp_ttl"`
}

type StorageConfig struct {
	Type  string             `mapstructure:"type"`
	Local LocalStorageConfig `mapstructure:"local"`
	S3    S3StorageConfig    `mapstructure:"s3"`
}

type LocalStorageConfig struct {
	Path string `mapstructure:"path"`
}

type S3StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

type CustomFieldConfig struct {
	Use  bool   `mapstructure:"use"`
	Name string `mapstructure:"name"`
}

type TicketConfig struct {
	// MessageFormat is "plain" (escape, linkify, nl2br) or "markdown".
	MessageFormat string `mapstructure:"message_format"`
	// FixedStatuses lists custom statuses customers cannot move a ticket out of.
	FixedStatuses []int                        `mapstructure:"fixed_statuses"`
	CustomFields  map[string]CustomFieldConfig `mapstructure:"custom_fields"`
}

// CustomFieldNames returns every configured custom field, sorted.
func (t TicketConfig) CustomFieldNames() []string {
	names := make([]string, 0, len(t.CustomFields))
	for name := range t.CustomFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledCustomFields returns the custom fields with use=true, sorted.
func (t TicketConfig) EnabledCustomFields() []string {
	var names []string
	for name, f := range t.CustomFields {
		if f.Use {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type EmailConfig struct {
	Enabled  bool       `mapstructure:"enabled"`
	From     string     `mapstructure:"from"`
	FromName string     `mapstructure:"from_name"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	TLS        string        `mapstructure:"tls"` // none, starttls, ssl
	SkipVerify bool          `mapstructure:"skip_verify"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PushConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	FCM      FCMConfig      `mapstructure:"fcm"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	ChatID      string `mapstructure:"chat_id"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

// ParseChatID returns the numeric chat id. Group chats are negative.
func (t TelegramConfig) ParseChatID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(t.ChatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("push.telegram.chat_id %q is not a number", t.ChatID)
	}
	return id, nil
}

type FCMConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Topic           string `mapstructure:"topic"`
	DeviceTokens    bool   `mapstructure:"device_tokens"`
}

type WebhookConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	Endpoints []string          `mapstructure:"endpoints"`
	Secret    string            `mapstructure:"secret"`
	Headers   map[string]string `mapstructure:"headers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RunnerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	TempCleanupSchedule string `mapstructure:"temp_cleanup_schedule"`
	BanCleanupSchedule  string `mapstructure:"ban_cleanup_schedule"`
}

// GetServerAddr returns the server listen address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetRedisAddr returns the Redis server address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "anri-helpdesk")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "Asia/Jakarta")
	v.SetDefault("app.helpdesk_title", "Help Desk")
	v.SetDefault("app.helpdesk_url", "http://localhost:8080")
	v.SetDefault("app.maintenance_mode", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_post_size", 8<<20)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.name", "hesk_db")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.table_prefix", "hesk_")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.prefix", "anri:session:")

	v.SetDefault("session.cookie_name", "anri_session")
	v.SetDefault("session.http_only", true)
	v.SetDefault("session.same_site", "Lax")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("security.flood", 3)
	v.SetDefault("security.attempt_limit", 6)
	v.SetDefault("security.attempt_banmin", 60)
	v.SetDefault("security.email_view_ticket", true)
	v.SetDefault("security.sequential_window", 10*time.Minute)
	v.SetDefault("security.sequential_limit", 10)

	v.SetDefault("attachments.use", true)
	v.SetDefault("attachments.max_number", 2)
	v.SetDefault("attachments.max_size", 2097152)
	v.SetDefault("attachments.allowed_types", []string{
		".gif", ".jpg", ".png", ".zip", ".rar", ".csv", ".doc", ".docx",
		".xls", ".xlsx", ".txt", ".pdf",
	})
	v.SetDefault("attachments.temp_ttl", 24*time.Hour)

	v.SetDefault("storage.type", "fs")
	v.SetDefault("storage.local.path", "attachments")

	v.SetDefault("ticket.message_format", "plain")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.from_name", "Help Desk")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.tls", "starttls")
	v.SetDefault("email.smtp.timeout", 20*time.Second)

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.timeout", 5*time.Second)
	v.SetDefault("push.telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("runner.enabled", true)
	v.SetDefault("runner.temp_cleanup_schedule", "0 */15 * * * *")
	v.SetDefault("runner.ban_cleanup_schedule", "0 0 * * * *")
}

// Loader owns the viper instance so the file can be watched after startup.
type Loader struct {
	v    *viper.Viper
	path string
	mu   sync.RWMutex
	cfg  *Config
}

// NewLoader reads defaults, the optional config file and ANRI_* environment
// overrides. An empty path skips the file.
func NewLoader(configFile string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ANRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, reflect.TypeOf(Config{}), "")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loader{v: v, path: configFile, cfg: cfg}, nil
}

// bindEnv registers ANRI_<KEY> for every leaf of the config tree. AutomaticEnv
// only reaches keys viper already knows, so without this a key that has no
// default and no file entry would ignore its variable. Map keys are dynamic
// and stay file-only.
func bindEnv(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		switch f.Type.Kind() {
		case reflect.Struct:
			bindEnv(v, f.Type, key)
		case reflect.Map:
		default:
			_ = v.BindEnv(key, "ANRI_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
		}
	}
}

// Load is a shortcut for NewLoader(path).Config().
func Load(configFile string) (*Config, error) {
	l, err := NewLoader(configFile)
	if err != nil {
		return nil, err
	}
	return l.Config(), nil
}

// Path returns the config file in use, or "" when running on defaults.
func (l *Loader) Path() string {
	return l.path
}

// Config returns the current configuration (thread-safe)
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch reloads the file on change and hands each valid new config to fn.
// Invalid configs are reported through onError and otherwise ignored.
// Without a config file there is nothing to watch.
func (l *Loader) Watch(fn func(*Config), onError func(error)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := l.v.Unmarshal(newCfg); err != nil {
			onError(fmt.Errorf("failed to reload %s: %w", e.Name, err))
			return
		}
		if err := newCfg.Validate(); err != nil {
			onError(fmt.Errorf("ignoring invalid %s: %w", e.Name, err))
			return
		}

		l.mu.Lock()
		l.cfg = newCfg
		l.mu.Unlock()
		fn(newCfg)
	})
	l.v.WatchConfig()
}

var (
	prefixPattern      = regexp.MustCompile(`^[A-Za-z0-9_]*$`)
	customFieldPattern = regexp.MustCompile(`^custom([1-9]|1[0-9]|20)$`)
)

// Validate checks values that are interpolated into SQL or select a backend.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if !prefixPattern.MatchString(c.Database.TablePrefix) {
		errs = append(errs, fmt.Errorf("database.table_prefix %q may only contain letters, digits and underscores", c.Database.TablePrefix))
	}
	for name := range c.Ticket.CustomFields {
		if !customFieldPattern.MatchString(name) {
			errs = append(errs, fmt.Errorf("ticket.custom_fields: %q is not a customN column (1-20)", name))
		}
	}
	switch c.Ticket.MessageFormat {
	case "plain", "markdown":
	default:
		errs = append(errs, fmt.Errorf("ticket.message_format %q must be plain or markdown", c.Ticket.MessageFormat))
	}
	switch c.Storage.Type {
	case "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q must be fs or s3", c.Storage.Type))
	}
	if c.Security.Flood < 0 {
		errs = append(errs, errors.New("security.flood must not be negative"))
	}
	if c.Security.AttemptLimit <= 0 {
		errs = append(errs, errors.New("security.attempt_limit must be positive"))
	}
	if c.Security.SequentialLimit <= 0 {
		errs = append(errs, errors.New("security.sequential_limit must be positive"))
	}
	if c.Attachments.Use && c.Attachments.MaxNumber <= 0 {
		errs = append(errs, errors.New("attachments.max_number must be positive when attachments are enabled"))
	}

	return errors.Join(errs...)
}
