package auth

import (
	"slices"
	"sort"
	"strings"
	"unicode"

	goerrors "github.com/goliatone/go-errors"
)

// AuthorityDelimiter joins authority names inside the token authorities
// claim. Authority names may never contain it.
const AuthorityDelimiter = ","

const (
	RoleUser       = "ROLE_USER"
	RoleHR         = "ROLE_HR"
	RoleManager    = "ROLE_MANAGER"
	RoleAdmin      = "ROLE_ADMIN"
	RoleSuperAdmin = "ROLE_SUPER_ADMIN"
)

const (
	AuthorityUserRead   = "user:read"
	AuthorityUserCreate = "user:create"
	AuthorityUserUpdate = "user:update"
	AuthorityUserDelete = "user:delete"
)

// AuthorityTable maps role names to an ordered set of authorities. It is
// built once at startup and read-only afterwards.
type AuthorityTable struct {
	roles map[string][]string
}

// NewAuthorityTable validates every authority name and removes duplicates
// while keeping the declared order.
func NewAuthorityTable(table map[string][]string) (*AuthorityTable, error) {
	roles := make(map[string][]string, len(table))
	for role, authorities := range table {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, goerrors.New("role name must not be empty", goerrors.CategoryValidation)
		}

		ordered := make([]string, 0, len(authorities))
		for _, authority := range authorities {
			if err := ValidateAuthority(authority); err != nil {
				return nil, err
			}
			if !slices.Contains(ordered, authority) {
				ordered = append(ordered, authority)
			}
		}
		roles[role] = ordered
	}
	return &AuthorityTable{roles: roles}, nil
}

// DefaultAuthorityTable returns the portal roles
func DefaultAuthorityTable() *AuthorityTable {
	t, err := NewAuthorityTable(map[string][]string{
		RoleUser:       {AuthorityUserRead},
		RoleHR:         {AuthorityUserRead, AuthorityUserUpdate},
		RoleManager:    {AuthorityUserRead, AuthorityUserUpdate},
		RoleAdmin:      {AuthorityUserRead, AuthorityUserCreate, AuthorityUserUpdate},
		RoleSuperAdmin: {AuthorityUserRead, AuthorityUserCreate, AuthorityUserUpdate, AuthorityUserDelete},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns a copy of the authorities granted to role
func (t *AuthorityTable) Resolve(role string) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	authorities, ok := t.roles[strings.TrimSpace(role)]
	if !ok {
		return nil, false
	}
	return slices.Clone(authorities), true
}

// Roles returns the known role names sorted alphabetically
func (t *AuthorityTable) Roles() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// ValidateAuthority rejects names that would break the claim encoding
func ValidateAuthority(name string) error {
	if strings.TrimSpace(name) == "" {
		return goerrors.New("authority name must not be empty", goerrors.CategoryValidation)
	}
	if strings.Contains(name, AuthorityDelimiter) || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return goerrors.New("authority name contains a reserved character", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"authority": name})
	}
	return nil
}

// JoinAuthorities encodes authorities as a single claim string
func JoinAuthorities(authorities []string) string {
	return strings.Join(authorities, AuthorityDelimiter)
}

// SplitAuthorities decodes a claim string, keeping order
func SplitAuthorities(claim string) []string {
	if claim == "" {
		return []string{}
	}
	return strings.Split(claim, AuthorityDelimiter)
}
