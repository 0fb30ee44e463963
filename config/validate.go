package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-portal-auth"
)

var supportedDialects = []any{"sqlite", "postgres"}

// Validate checks the loaded configuration
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Auth),
		validation.Field(&c.Lockout),
		validation.Field(&c.Persistence),
		validation.Field(&c.SMTP),
		validation.Field(&c.Server),
		validation.Field(&c.Admin, validation.By(c.knownAdminRole)),
		validation.Field(&c.Roles, validation.By(validateRoles)),
	)
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey,
			validation.Required,
			validation.Length(auth.MinSigningKeyLength, 0),
		),
		validation.Field(&a.SessionTTLExpression, validation.Required, validation.By(positiveDuration)),
		validation.Field(&a.ResetTTLExpression, validation.Required, validation.By(positiveDuration)),
		validation.Field(&a.FrontendURL, validation.Required, is.URL),
		validation.Field(&a.TokenHeader, validation.Required),
		validation.Field(&a.BcryptCost, validation.Min(4), validation.Max(31)),
	)
}

func (l Lockout) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Threshold, validation.Required, validation.Min(1)),
		validation.Field(&l.AttemptTTLExpression, validation.Required, validation.By(positiveDuration)),
		validation.Field(&l.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&l.SweepEveryExpression, validation.Required, validation.By(positiveDuration)),
		validation.Field(&l.LoginRateLimit, validation.Min(0.0)),
		validation.Field(&l.LoginRateBurst, validation.Min(0)),
	)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Dialect, validation.Required, validation.In(supportedDialects...)),
		validation.Field(&p.DSN, validation.Required),
	)
}

func (s SMTP) Validate() error {
	if !s.Enabled() {
		return nil
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.From, validation.Required, is.Email),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.ShutdownTimeoutExpr, validation.Required, validation.By(positiveDuration)),
	)
}

func (a Admin) Validate() error {
	if a.Username == "" {
		return nil
	}
	return validation.ValidateStruct(&a,
		validation.Field(&a.Email, validation.Required, is.Email),
		validation.Field(&a.Password, validation.Required, validation.Length(8, 72)),
	)
}

func (c Config) knownAdminRole(value any) error {
	admin, _ := value.(Admin)
	if !admin.Enabled() {
		return nil
	}

	table, err := c.AuthorityTable()
	if err != nil {
		return nil
	}

	if roles := table.Roles(); !slices.Contains(roles, admin.Role) {
		return fmt.Errorf("role must be one of %s", strings.Join(roles, ", "))
	}
	return nil
}

func positiveDuration(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		return errors.New("must be a duration such as 15m or 120h")
	}
	if dur <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func validateRoles(value any) error {
	roles, _ := value.(map[string][]string)
	for role, authorities := range roles {
		if strings.TrimSpace(role) == "" {
			return errors.New("role names must not be empty")
		}
		for _, authority := range authorities {
			if err := auth.ValidateAuthority(authority); err != nil {
				return err
			}
		}
	}
	return nil
}
