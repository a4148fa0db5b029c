package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env  string `yaml:"env"`
		Name string `yaml:"name"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`

		ShutdownTimeoutDur time.Duration `yaml:"-"`
	} `yaml:"server"`

	JWT struct {
		Issuer        string `yaml:"issuer"`
		TokenTTL      string `yaml:"token_ttl"`
		ClockSkew     string `yaml:"clock_skew"`
		RotationGrace string `yaml:"rotation_grace"`
		RSABits       int    `yaml:"rsa_bits"`

		TokenTTLDur      time.Duration `yaml:"-"`
		ClockSkewDur     time.Duration `yaml:"-"`
		RotationGraceDur time.Duration `yaml:"-"`
	} `yaml:"jwt"`

	Keys struct {
		// memory | fs | postgres
		Store         string `yaml:"store"`
		FSDir         string `yaml:"fs_dir"`
		DSN           string `yaml:"dsn"`
		MaxConns      int32  `yaml:"max_conns"`
		SweepInterval string `yaml:"sweep_interval"`
		// ReloadInterval: cada cuánto se relee el store compartido entre réplicas
		ReloadInterval string `yaml:"reload_interval"`
		// MasterKey cifra el material privado en fs/postgres (nunca en YAML de prod, usar env)
		MasterKey string `yaml:"master_key"`

		SweepIntervalDur  time.Duration `yaml:"-"`
		ReloadIntervalDur time.Duration `yaml:"-"`
	} `yaml:"keys"`

	JWKS struct {
		// URL del auth service (solo resource services)
		URL          string `yaml:"url"`
		FetchTTL     string `yaml:"fetch_ttl"`
		FetchTimeout string `yaml:"fetch_timeout"`
		// nil = default (2); 0 desactiva los reintentos
		MaxRetries *int `yaml:"max_retries"`
		// memory | redis
		Cache string `yaml:"cache"`
		// MaxAge del Cache-Control que publica el auth service
		MaxAge string `yaml:"max_age"`

		FetchTTLDur     time.Duration `yaml:"-"`
		FetchTimeoutDur time.Duration `yaml:"-"`
		MaxAgeDur       time.Duration `yaml:"-"`
	} `yaml:"jwks"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// memory | redis
		Backend string `yaml:"backend"`
		Login   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`

			WindowDur time.Duration `yaml:"-"`
		} `yaml:"login"`
	} `yaml:"rate"`

	// Policies: nombre -> roles (any-of). Lista vacía = cualquier autenticado.
	Policies map[string][]string `yaml:"policies"`

	// Users: directorio de credenciales de dev.
	Users []User `yaml:"users"`
}

type User struct {
	Subject      string   `yaml:"subject"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

const (
	PolicyAdmin = "admin"
	PolicyMe    = "me"
)

// Default devuelve una config con defaults (duraciones ya resueltas) y sin archivo.
func Default() *Config {
	var c Config
	c.setDefaults()
	_ = c.resolve()
	return &c
}

// Load lee el YAML (path vacío = solo defaults), aplica env y resuelve duraciones.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.setDefaults()
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "jwkgate"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.JWT.TokenTTL == "" {
		c.JWT.TokenTTL = "15m"
	}
	if c.JWT.ClockSkew == "" {
		c.JWT.ClockSkew = "30s"
	}
	if c.JWT.RotationGrace == "" {
		// al menos un TTL de token: lo emitido antes de rotar sigue verificando
		c.JWT.RotationGrace = "30m"
	}
	if c.JWT.RSABits == 0 {
		c.JWT.RSABits = 2048
	}
	if c.Keys.Store == "" {
		c.Keys.Store = "memory"
	}
	if c.Keys.FSDir == "" {
		c.Keys.FSDir = "data/keys"
	}
	if c.Keys.SweepInterval == "" {
		c.Keys.SweepInterval = "1m"
	}
	if c.Keys.ReloadInterval == "" {
		c.Keys.ReloadInterval = "10s"
	}
	if c.JWKS.FetchTTL == "" {
		c.JWKS.FetchTTL = "5m"
	}
	if c.JWKS.FetchTimeout == "" {
		c.JWKS.FetchTimeout = "5s"
	}
	if c.JWKS.MaxRetries == nil {
		n := 2
		c.JWKS.MaxRetries = &n
	}
	if c.JWKS.Cache == "" {
		c.JWKS.Cache = "memory"
	}
	if c.JWKS.MaxAge == "" {
		c.JWKS.MaxAge = "5m"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "jwkgate"
	}
	if c.Rate.Backend == "" {
		c.Rate.Backend = "memory"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Policies == nil {
		c.Policies = map[string][]string{}
	}
	if _, ok := c.Policies[PolicyAdmin]; !ok {
		c.Policies[PolicyAdmin] = []string{"admin"}
	}
	if _, ok := c.Policies[PolicyMe]; !ok {
		c.Policies[PolicyMe] = []string{}
	}
}

// resolve parsea las duraciones string a sus campos tipados.
func (c *Config) resolve() error {
	durs := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", c.Server.ShutdownTimeout, &c.Server.ShutdownTimeoutDur},
		{"jwt.token_ttl", c.JWT.TokenTTL, &c.JWT.TokenTTLDur},
		{"jwt.clock_skew", c.JWT.ClockSkew, &c.JWT.ClockSkewDur},
		{"jwt.rotation_grace", c.JWT.RotationGrace, &c.JWT.RotationGraceDur},
		{"keys.sweep_interval", c.Keys.SweepInterval, &c.Keys.SweepIntervalDur},
		{"keys.reload_interval", c.Keys.ReloadInterval, &c.Keys.ReloadIntervalDur},
		{"jwks.fetch_ttl", c.JWKS.FetchTTL, &c.JWKS.FetchTTLDur},
		{"jwks.fetch_timeout", c.JWKS.FetchTimeout, &c.JWKS.FetchTimeoutDur},
		{"jwks.max_age", c.JWKS.MaxAge, &c.JWKS.MaxAgeDur},
		{"rate.login.window", c.Rate.Login.Window, &c.Rate.Login.WindowDur},
	}
	for _, d := range durs {
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno. Las duraciones se
// copian como string y se validan en resolve.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_TOKEN_TTL"); ok {
		c.JWT.TokenTTL = v
	}
	if v, ok := getEnvStr("JWT_CLOCK_SKEW"); ok {
		c.JWT.ClockSkew = v
	}
	if v, ok := getEnvStr("KEY_ROTATION_GRACE"); ok {
		c.JWT.RotationGrace = v
	}
	if v, ok := getEnvInt("JWT_RSA_BITS"); ok {
		c.JWT.RSABits = v
	}

	// KEYS
	if v, ok := getEnvStr("KEYS_STORE"); ok {
		c.Keys.Store = strings.ToLower(v)
	}
	if v, ok := getEnvStr("KEYS_FS_DIR"); ok {
		c.Keys.FSDir = v
	}
	if v, ok := getEnvStr("KEYS_DSN"); ok {
		c.Keys.DSN = v
	}
	if v, ok := getEnvStr("SIGNING_MASTER_KEY"); ok {
		c.Keys.MasterKey = v
	}

	// JWKS
	if v, ok := getEnvStr("JWKS_URL"); ok {
		c.JWKS.URL = v
	}
	if v, ok := getEnvStr("JWKS_FETCH_TTL"); ok {
		c.JWKS.FetchTTL = v
	}
	if v, ok := getEnvInt("JWKS_MAX_RETRIES"); ok {
		c.JWKS.MaxRetries = &v
	}
	if v, ok := getEnvStr("JWKS_CACHE"); ok {
		c.JWKS.Cache = strings.ToLower(v)
	}

	// REDIS
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
}

// Validate chequea la config del auth service (issuer) o del resource
// service (jwks). role: "auth" | "resource".
func (c *Config) Validate(role string) error {
	var errs []error
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		errs = append(errs, errors.New("jwt.issuer is required"))
	}
	if c.JWT.ClockSkewDur < 0 {
		errs = append(errs, errors.New("jwt.clock_skew must be >= 0"))
	}

	switch role {
	case "auth":
		if c.JWT.TokenTTLDur <= 0 {
			errs = append(errs, errors.New("jwt.token_ttl must be > 0"))
		}
		// una réplica que todavía no vio la rotación firma con la clave vieja
		// hasta su próximo reload; ese token tiene que verificar hasta exp+skew
		if floor := c.MinRotationGrace(); c.JWT.RotationGraceDur < floor {
			errs = append(errs, fmt.Errorf("jwt.rotation_grace (%s) must be >= token_ttl + keys.reload_interval + clock_skew (%s)", c.JWT.RotationGraceDur, floor))
		}
		if c.Keys.ReloadIntervalDur <= 0 || c.Keys.SweepIntervalDur <= 0 {
			errs = append(errs, errors.New("keys.reload_interval and keys.sweep_interval must be > 0"))
		}
		if c.JWT.RSABits < 2048 {
			errs = append(errs, fmt.Errorf("jwt.rsa_bits must be >= 2048, got %d", c.JWT.RSABits))
		}
		switch c.Keys.Store {
		case "memory":
		case "fs":
			if c.Keys.MasterKey == "" {
				errs = append(errs, errors.New("keys.master_key (SIGNING_MASTER_KEY) is required for fs store"))
			}
		case "postgres":
			if c.Keys.DSN == "" {
				errs = append(errs, errors.New("keys.dsn is required for postgres store"))
			}
			if c.Keys.MasterKey == "" {
				errs = append(errs, errors.New("keys.master_key (SIGNING_MASTER_KEY) is required for postgres store"))
			}
		default:
			errs = append(errs, fmt.Errorf("keys.store %q not supported", c.Keys.Store))
		}
		if c.App.Env == "prod" && c.Keys.Store == "memory" {
			errs = append(errs, errors.New("keys.store=memory is not allowed in prod"))
		}
	case "resource":
		if c.JWKS.URL == "" {
			errs = append(errs, errors.New("jwks.url is required"))
		}
		if c.JWKS.FetchTTLDur <= 0 {
			errs = append(errs, errors.New("jwks.fetch_ttl must be > 0"))
		}
		if c.JWKS.MaxRetries != nil && *c.JWKS.MaxRetries < 0 {
			errs = append(errs, errors.New("jwks.max_retries must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown service role %q", role))
	}

	if c.NeedsRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required when a redis backend is selected"))
		}
	}
	if c.Rate.Enabled && (c.Rate.Login.Limit <= 0 || c.Rate.Login.WindowDur <= 0) {
		errs = append(errs, errors.New("rate.login limit and window must be > 0"))
	}
	return errors.Join(errs...)
}

// MinRotationGrace es la gracia mínima que cubre un token firmado por una
// réplica desactualizada justo antes de su reload.
func (c *Config) MinRotationGrace() time.Duration {
	reload := c.Keys.ReloadIntervalDur
	if c.Keys.SweepIntervalDur > 0 && (reload <= 0 || c.Keys.SweepIntervalDur < reload) {
		reload = c.Keys.SweepIntervalDur
	}
	return c.JWT.TokenTTLDur + reload + c.JWT.ClockSkewDur
}

// JWKSMaxRetries devuelve jwks.max_retries resuelto.
func (c *Config) JWKSMaxRetries() int {
	if c.JWKS.MaxRetries == nil {
		return 2
	}
	return *c.JWKS.MaxRetries
}

// NeedsRedis indica si algún backend usa redis.
func (c *Config) NeedsRedis() bool {
	return c.JWKS.Cache == "redis" || (c.Rate.Enabled && c.Rate.Backend == "redis")
}
