package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-portal-auth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.SigningKey = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()

	assert.Equal(t, 120*time.Hour, cfg.Auth.GetSessionTTL())
	assert.Equal(t, 60*time.Minute, cfg.Auth.GetResetTTL())
	assert.Equal(t, 15*time.Minute, cfg.Lockout.GetAttemptTTL())
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 10000, cfg.Lockout.Capacity)
	assert.Equal(t, "Jwt-Token", cfg.Auth.TokenHeader)
	assert.Equal(t, "support-portal", cfg.Auth.Issuer)
	assert.Equal(t, []string{"User Management Portal"}, cfg.Auth.Audience)
}

func TestValidate_RequiresSigningKey(t *testing.T) {
	cfg := config.Defaults()

	err := cfg.Validate()
	require.Error(t, err)

	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "auth")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{name: "defaults with key", mutate: func(c *config.Config) {}},
		{name: "short key", mutate: func(c *config.Config) { c.Auth.SigningKey = "short" }, wantErr: true},
		{name: "zero session ttl", mutate: func(c *config.Config) { c.Auth.SessionTTLExpression = "0s" }, wantErr: true},
		{name: "bad reset ttl", mutate: func(c *config.Config) { c.Auth.ResetTTLExpression = "soon" }, wantErr: true},
		{name: "zero threshold", mutate: func(c *config.Config) { c.Lockout.Threshold = 0 }, wantErr: true},
		{name: "bad frontend url", mutate: func(c *config.Config) { c.Auth.FrontendURL = "not a url" }, wantErr: true},
		{name: "unknown dialect", mutate: func(c *config.Config) { c.Persistence.Dialect = "oracle" }, wantErr: true},
		{name: "smtp without sender", mutate: func(c *config.Config) { c.SMTP.Host = "smtp.example.com" }, wantErr: true},
		{name: "admin without email", mutate: func(c *config.Config) {
			c.Admin.Username = "admin"
			c.Admin.Password = "sup3rs3cret"
		}, wantErr: true},
		{name: "admin with unknown role", mutate: func(c *config.Config) {
			c.Admin = config.Admin{Username: "admin", Email: "admin@example.com", Password: "sup3rs3cret", Role: "ROLE_ROOT"}
		}, wantErr: true},
		{name: "admin with custom table role", mutate: func(c *config.Config) {
			c.Roles = map[string][]string{"ROLE_AUDITOR": {"audit:read"}}
			c.Admin = config.Admin{Username: "admin", Email: "admin@example.com", Password: "sup3rs3cret", Role: "ROLE_AUDITOR"}
		}},
		{name: "admin role missing from custom table", mutate: func(c *config.Config) {
			c.Roles = map[string][]string{"ROLE_AUDITOR": {"audit:read"}}
			c.Admin = config.Admin{Username: "admin", Email: "admin@example.com", Password: "sup3rs3cret", Role: auth.RoleSuperAdmin}
		}, wantErr: true},
		{name: "role with delimiter", mutate: func(c *config.Config) {
			c.Roles = map[string][]string{auth.RoleUser: {"user:read,user:write"}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeConfigFile(t, `{
		"auth": {"signing_key": "0123456789abcdef0123456789abcdef", "issuer": "file-issuer"},
		"lockout": {"threshold": 7}
	}`)

	t.Setenv("AUTH_AUTH__SIGNING_KEY", "fedcba9876543210fedcba9876543210")
	t.Setenv("AUTH_AUTH__RESET_TTL", "30m")
	t.Setenv("AUTH_AUTH__DEBUG", "true")
	t.Setenv("AUTH_AUTH__ISSUER", "")
	t.Setenv("AUTH_LOCKOUT__THRESHOLD", "3")
	t.Setenv("AUTH_PERSISTENCE__DIALECT", "postgres")
	t.Setenv("AUTH_PERSISTENCE__DSN", "postgres://localhost/auth")

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "fedcba9876543210fedcba9876543210", cfg.Auth.SigningKey)
	assert.Equal(t, 30*time.Minute, cfg.Auth.GetResetTTL())
	assert.True(t, cfg.Auth.Debug)
	assert.Equal(t, "file-issuer", cfg.Auth.Issuer, "blank variables are ignored")
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, "postgres", cfg.Persistence.Dialect)
	assert.Equal(t, "postgres://localhost/auth", cfg.Persistence.DSN)

	assert.Equal(t, 120*time.Hour, cfg.Auth.GetSessionTTL(), "unset keys keep defaults")
	assert.Equal(t, auth.DefaultAttemptCapacity, cfg.Lockout.Capacity)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AUTH_AUTH__SIGNING_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, auth.DefaultLockoutThreshold, cfg.Lockout.Threshold)
	assert.Equal(t, "support-portal", cfg.Auth.Issuer)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		path := writeConfigFile(t, `{"auth": `)
		_, err := config.Load(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("invalid number", func(t *testing.T) {
		t.Setenv("AUTH_AUTH__SIGNING_KEY", "0123456789abcdef0123456789abcdef")
		t.Setenv("AUTH_LOCKOUT__THRESHOLD", "five")
		_, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})

	t.Run("fails validation", func(t *testing.T) {
		path := writeConfigFile(t, `{"auth": {"signing_key": "short"}}`)
		_, err := config.Load(context.Background(), path)
		assert.Error(t, err)
	})
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.SMTP.Password = "smtp-secret"
	cfg.Admin.Password = "admin-secret"

	out := cfg.Redacted()
	assert.Equal(t, "********", out.Auth.SigningKey)
	assert.Equal(t, "********", out.SMTP.Password)
	assert.Equal(t, "********", out.Admin.Password)
	assert.Empty(t, out.Redis.Password)

	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.SigningKey)
}

func TestAuthorityTable(t *testing.T) {
	cfg := validConfig()

	table, err := cfg.AuthorityTable()
	require.NoError(t, err)
	got, ok := table.Resolve(auth.RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, []string{auth.AuthorityUserRead, auth.AuthorityUserCreate, auth.AuthorityUserUpdate}, got)

	cfg.Roles = map[string][]string{"ROLE_AUDITOR": {"audit:read"}}
	table, err = cfg.AuthorityTable()
	require.NoError(t, err)
	_, ok = table.Resolve(auth.RoleAdmin)
	assert.False(t, ok)
}
