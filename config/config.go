package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-relay
	Version   string `yaml:"version"`   // v0.1.0
	Level     string `yaml:"level"`     // debug|info|warn|error
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Driver        string        `yaml:"driver"` // postgres|sqlite|memory
	AppendTimeout time.Duration `yaml:"appendTimeout"`
	SQLitePath    string        `yaml:"sqlitePath"`
	MemoryHistory int           `yaml:"memoryHistory"`
}

type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

type JWT struct {
	Alg            string        `yaml:"alg"` // HS256|RS256
	Secret         string        `yaml:"secret"`
	PrivateKeyPath string        `yaml:"privateKeyPath"`
	PublicKeyPath  string        `yaml:"publicKeyPath"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	AccessTTL      time.Duration `yaml:"accessTTL"`
	ClockSkew      time.Duration `yaml:"clockSkew"`
}

type Password struct {
	MinLength  int `yaml:"minLength"`
	BcryptCost int `yaml:"bcryptCost"`
}

type Login struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	LockDuration time.Duration `yaml:"lockDuration"`
	RateLimit    int           `yaml:"rateLimit"`
	RateWindow   time.Duration `yaml:"rateWindow"`
}

type Security struct {
	JWT      JWT      `yaml:"jwt"`
	Password Password `yaml:"password"`
	Login    Login    `yaml:"login"`
}

type Presence struct {
	SweepInterval time.Duration `yaml:"sweepInterval"`
	MaxIdle       time.Duration `yaml:"maxIdle"`
	TouchOnPong   bool          `yaml:"touchOnPong"`
	MirrorTTL     time.Duration `yaml:"mirrorTTL"`
}

type Chat struct {
	MaxContentLength int `yaml:"maxContentLength"`
	HistoryLimit     int `yaml:"historyLimit"`
}

type WS struct {
	PingInterval  time.Duration `yaml:"pingInterval"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	ReadLimit     int64         `yaml:"readLimit"`
	SendBuffer    int           `yaml:"sendBuffer"`
	MessageBurst  int           `yaml:"messageBurst"`
	MessageRefill time.Duration `yaml:"messageRefill"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Store    Store    `yaml:"store"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Security Security `yaml:"security"`
	Presence Presence `yaml:"presence"`
	Chat     Chat     `yaml:"chat"`
	WS       WS       `yaml:"ws"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies env overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Security.JWT.Secret = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	c.setDefaults()

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for store.driver=postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlitePath is required for store.driver=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch strings.ToUpper(c.Security.JWT.Alg) {
	case "HS256":
		if c.Security.JWT.Secret == "" {
			return errors.New("security.jwt.secret is required for HS256")
		}
	case "RS256":
		if c.Security.JWT.PrivateKeyPath == "" || c.Security.JWT.PublicKeyPath == "" {
			return errors.New("security.jwt private and public key paths are required for RS256")
		}
	default:
		return fmt.Errorf("unsupported security.jwt.alg %q", c.Security.JWT.Alg)
	}
	c.Security.JWT.Alg = strings.ToUpper(c.Security.JWT.Alg)

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled")
	}
	if c.WS.PingInterval >= c.Presence.MaxIdle {
		return errors.New("ws.pingInterval must be shorter than presence.maxIdle")
	}
	if c.Chat.MaxContentLength <= 0 {
		return errors.New("chat.maxContentLength must be positive")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 15 * time.Second
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-relay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.AppendTimeout == 0 {
		c.Store.AppendTimeout = 3 * time.Second
	}
	if c.Store.MemoryHistory == 0 {
		c.Store.MemoryHistory = 1000
	}
	if c.Postgres.ConnectTimeout == 0 {
		c.Postgres.ConnectTimeout = 5 * time.Second
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	j := &c.Security.JWT
	if j.Alg == "" {
		j.Alg = "HS256"
	}
	if j.Issuer == "" {
		j.Issuer = "chat-relay"
	}
	if j.Audience == "" {
		j.Audience = "chat-relay-clients"
	}
	if j.AccessTTL == 0 {
		j.AccessTTL = time.Hour
	}
	if j.ClockSkew == 0 {
		j.ClockSkew = 30 * time.Second
	}

	p := &c.Security.Password
	if p.MinLength == 0 {
		p.MinLength = 8
	}
	if p.BcryptCost == 0 {
		p.BcryptCost = 12
	}

	l := &c.Security.Login
	if l.MaxAttempts == 0 {
		l.MaxAttempts = 5
	}
	if l.LockDuration == 0 {
		l.LockDuration = time.Hour
	}
	if l.RateLimit == 0 {
		l.RateLimit = 5
	}
	if l.RateWindow == 0 {
		l.RateWindow = time.Hour
	}

	if c.Presence.SweepInterval == 0 {
		c.Presence.SweepInterval = 5 * time.Minute
	}
	if c.Presence.MaxIdle == 0 {
		c.Presence.MaxIdle = 5 * time.Minute
	}
	if c.Presence.MirrorTTL == 0 {
		c.Presence.MirrorTTL = c.Presence.MaxIdle
	}

	if c.Chat.MaxContentLength == 0 {
		c.Chat.MaxContentLength = 1000
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = 50
	}

	if c.WS.PingInterval == 0 {
		c.WS.PingInterval = 30 * time.Second
	}
	if c.WS.WriteTimeout == 0 {
		c.WS.WriteTimeout = 10 * time.Second
	}
	if c.WS.ReadLimit == 0 {
		c.WS.ReadLimit = 16 << 10
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.MessageBurst == 0 {
		c.WS.MessageBurst = 10
	}
	if c.WS.MessageRefill == 0 {
		c.WS.MessageRefill = time.Second
	}
}
