package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. HANGOUT_SERVER_PORT.
const EnvPrefix = "HANGOUT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Presence PresenceConfig `mapstructure:"presence"`
	Room     RoomConfig     `mapstructure:"room"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"` // empty allows any IP holding the admin key
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	PostRateRPS    float64       `mapstructure:"post_rate_rps"` // per user, message and reaction writes
	PostRateBurst  int           `mapstructure:"post_rate_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PresenceConfig holds the activity windows used to derive online/live state.
// Each consumer reads its own window.
type PresenceConfig struct {
	OnlineWindow time.Duration `mapstructure:"online_window"`
	FriendWindow time.Duration `mapstructure:"friend_window"`
	LiveWindow   time.Duration `mapstructure:"live_window"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`

	// TouchInterval throttles last-seen writes per user. Zero writes on
	// every request.
	TouchInterval time.Duration `mapstructure:"touch_interval"`
}

type RoomConfig struct {
	DefaultMaxMembers int `mapstructure:"default_max_members"`
	MaxMembersLimit   int `mapstructure:"max_members_limit"`
	MaxNameLen        int `mapstructure:"max_name_len"`
}

type ChatConfig struct {
	MaxMessageLen int `mapstructure:"max_message_len"`
	RecentBuffer  int `mapstructure:"recent_buffer"`
	HistoryLimit  int `mapstructure:"history_limit"`
}

// NotifyConfig configures the email notifier. An empty SMTPHost keeps
// notifications in-app only.
type NotifyConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	From         string `mapstructure:"from"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error: defaults plus HANGOUT_* environment variables are used instead.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/hangout.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 50)
	v.SetDefault("security.rate_limit_burst", 100)
	v.SetDefault("security.post_rate_rps", 2)
	v.SetDefault("security.post_rate_burst", 10)
	v.SetDefault("presence.online_window", "2m")
	v.SetDefault("presence.friend_window", "5m")
	v.SetDefault("presence.live_window", "2m")
	v.SetDefault("presence.reap_interval", "30s")
	v.SetDefault("presence.touch_interval", "15s")
	v.SetDefault("room.default_max_members", 50)
	v.SetDefault("room.max_members_limit", 500)
	v.SetDefault("room.max_name_len", 64)
	v.SetDefault("chat.max_message_len", 2000)
	v.SetDefault("chat.recent_buffer", 50)
	v.SetDefault("chat.history_limit", 100)
	v.SetDefault("notify.smtp_port", 587)
	v.SetDefault("notify.from", "no-reply@hangout.local")
}
