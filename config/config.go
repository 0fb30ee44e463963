// Package config holds the typed process configuration for authd.
package config

import (
	"fmt"
	"time"

	auth "github.com/goliatone/go-portal-auth"
)

type Config struct {
	Auth        Auth                `json:"auth" koanf:"auth"`
	Lockout     Lockout             `json:"lockout" koanf:"lockout"`
	Persistence Persistence         `json:"persistence" koanf:"persistence"`
	SMTP        SMTP                `json:"smtp" koanf:"smtp"`
	Redis       Redis               `json:"redis" koanf:"redis"`
	Sentry      Sentry              `json:"sentry" koanf:"sentry"`
	Server      Server              `json:"server" koanf:"server"`
	Admin       Admin               `json:"admin" koanf:"admin"`
	Roles       map[string][]string `json:"roles" koanf:"roles"`
}

type Auth struct {
	SigningKey           string   `json:"signing_key" koanf:"signing_key"`
	SessionTTLExpression string   `json:"session_ttl" koanf:"session_ttl"`
	ResetTTLExpression   string   `json:"reset_ttl" koanf:"reset_ttl"`
	Issuer               string   `json:"issuer" koanf:"issuer"`
	Audience             []string `json:"audience" koanf:"audience"`
	FrontendURL          string   `json:"frontend_url" koanf:"frontend_url"`
	TokenHeader          string   `json:"token_header" koanf:"token_header"`
	TokenLookup          string   `json:"token_lookup" koanf:"token_lookup"`
	AuthScheme           string   `json:"auth_scheme" koanf:"auth_scheme"`
	ContextKey           string   `json:"context_key" koanf:"context_key"`
	BcryptCost           int      `json:"bcrypt_cost" koanf:"bcrypt_cost"`
	Debug                bool     `json:"debug" koanf:"debug"`
}

type Lockout struct {
	Threshold            int     `json:"threshold" koanf:"threshold"`
	AttemptTTLExpression string  `json:"attempt_ttl" koanf:"attempt_ttl"`
	Capacity             int     `json:"capacity" koanf:"capacity"`
	SweepEveryExpression string  `json:"sweep_every" koanf:"sweep_every"`
	LoginRateLimit       float64 `json:"login_rate_limit" koanf:"login_rate_limit"`
	LoginRateBurst       int     `json:"login_rate_burst" koanf:"login_rate_burst"`
}

type Persistence struct {
	Dialect string `json:"dialect" koanf:"dialect"`
	DSN     string `json:"dsn" koanf:"dsn"`
	Debug   bool   `json:"debug" koanf:"debug"`
}

type SMTP struct {
	Host     string `json:"host" koanf:"host"`
	Port     int    `json:"port" koanf:"port"`
	Username string `json:"username" koanf:"username"`
	Password string `json:"password" koanf:"password"`
	From     string `json:"from" koanf:"from"`
	FromName string `json:"from_name" koanf:"from_name"`
}

type Redis struct {
	Addr     string `json:"addr" koanf:"addr"`
	Password string `json:"password" koanf:"password"`
	DB       int    `json:"db" koanf:"db"`
	Prefix   string `json:"prefix" koanf:"prefix"`
}

type Sentry struct {
	DSN         string `json:"dsn" koanf:"dsn"`
	Environment string `json:"environment" koanf:"environment"`
}

type Server struct {
	Addr                string `json:"addr" koanf:"addr"`
	ShutdownTimeoutExpr string `json:"shutdown_timeout" koanf:"shutdown_timeout"`
	PrefixPath          string `json:"prefix_path" koanf:"prefix_path"`
}

type Admin struct {
	Username string `json:"username" koanf:"username"`
	Email    string `json:"email" koanf:"email"`
	Password string `json:"password" koanf:"password"`
	Role     string `json:"role" koanf:"role"`
}

// Defaults returns a configuration with every optional value set
func Defaults() *Config {
	return &Config{
		Auth: Auth{
			SessionTTLExpression: auth.DefaultSessionTTL.String(),
			ResetTTLExpression:   auth.DefaultResetTTL.String(),
			Issuer:               "support-portal",
			Audience:             []string{"User Management Portal"},
			FrontendURL:          "http://localhost:4200",
			TokenHeader:          auth.DefaultTokenHeader,
			TokenLookup:          "header:Authorization",
			AuthScheme:           "Bearer",
			ContextKey:           auth.DefaultPrincipalKey,
			BcryptCost:           12,
		},
		Lockout: Lockout{
			Threshold:            auth.DefaultLockoutThreshold,
			AttemptTTLExpression: auth.DefaultAttemptTTL.String(),
			Capacity:             auth.DefaultAttemptCapacity,
			SweepEveryExpression: "1m",
			LoginRateLimit:       1,
			LoginRateBurst:       10,
		},
		Persistence: Persistence{
			Dialect: "sqlite",
			DSN:     "file:authd.db?cache=shared&_pragma=foreign_keys(1)",
		},
		SMTP: SMTP{
			Port:     587,
			FromName: "Support Portal",
		},
		Redis: Redis{
			Prefix: "auth:reset:",
		},
		Server: Server{
			Addr:                ":8080",
			ShutdownTimeoutExpr: "10s",
			PrefixPath:          "/user",
		},
		Admin: Admin{
			Role: auth.RoleSuperAdmin,
		},
	}
}

func (a Auth) GetSessionTTL() time.Duration {
	return mustDuration("auth.session_ttl", a.SessionTTLExpression)
}

func (a Auth) GetResetTTL() time.Duration {
	return mustDuration("auth.reset_ttl", a.ResetTTLExpression)
}

func (a Auth) GetSigningKey() []byte {
	return []byte(a.SigningKey)
}

func (l Lockout) GetAttemptTTL() time.Duration {
	return mustDuration("lockout.attempt_ttl", l.AttemptTTLExpression)
}

func (l Lockout) GetSweepEvery() time.Duration {
	return mustDuration("lockout.sweep_every", l.SweepEveryExpression)
}

func (s Server) GetShutdownTimeout() time.Duration {
	return mustDuration("server.shutdown_timeout", s.ShutdownTimeoutExpr)
}

// Enabled reports whether an SMTP relay is configured
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

// Addr returns host:port for the relay
func (s SMTP) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}

func (s Sentry) Enabled() bool {
	return s.DSN != ""
}

func (a Admin) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// AuthorityTable builds the role table, falling back to the portal defaults
func (c *Config) AuthorityTable() (*auth.AuthorityTable, error) {
	if len(c.Roles) == 0 {
		return auth.DefaultAuthorityTable(), nil
	}
	return auth.NewAuthorityTable(c.Roles)
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	out := *c
	out.Auth.SigningKey = mask(out.Auth.SigningKey)
	out.SMTP.Password = mask(out.SMTP.Password)
	out.Redis.Password = mask(out.Redis.Password)
	out.Sentry.DSN = mask(out.Sentry.DSN)
	out.Admin.Password = mask(out.Admin.Password)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// mustDuration panics on a bad expression. Validate rejects those first.
func mustDuration(name, expr string) time.Duration {
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(fmt.Sprintf("unable to parse duration: %s expr %s", name, expr))
	}
	return dur
}
