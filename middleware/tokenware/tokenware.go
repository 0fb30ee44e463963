package tokenware

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-router"
)

var defaultTokenLookup = "header:" + router.HeaderAuthorization

// Authenticator turns a raw session token into a principal.
// auth.AuthenticationGate implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

type Config struct {
	Filter func(router.Context) bool
	// SuccessHandler runs after a principal is stored, defaults to the next handler
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	Authenticator  Authenticator
	ContextKey     string
	// TokenLookup is a comma separated list of source:name pairs, e.g.
	// "header:Authorization,cookie:jwt,query:token,param:token"
	TokenLookup string
	AuthScheme  string

	// RequiredAuthorities must all be held by the principal
	RequiredAuthorities []string
	// AnyAuthorities requires at least one of the listed authorities
	AnyAuthorities []string

	// ContextEnricher propagates the principal to the request user context.
	// Defaults to auth.WithPrincipal.
	ContextEnricher func(c context.Context, principal *auth.Principal) context.Context
}

func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			raw, ok := ExtractRawToken(ctx, extractors)
			if !ok {
				return cfg.ErrorHandler(ctx, missingTokenError())
			}

			principal, err := cfg.Authenticator.Authenticate(ctx.Context(), raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := performAuthorizationChecks(principal, cfg); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, principal)
			ctx.SetContext(cfg.ContextEnricher(ctx.Context(), principal))

			if cfg.SuccessHandler != nil {
				return cfg.SuccessHandler(ctx)
			}
			return next(ctx)
		}
	}
}

func performAuthorizationChecks(principal *auth.Principal, cfg Config) error {
	if len(cfg.RequiredAuthorities) > 0 && !principal.HasAllAuthorities(cfg.RequiredAuthorities...) {
		return auth.ErrForbidden.Clone().WithMetadata(map[string]any{
			"required": cfg.RequiredAuthorities,
		})
	}

	if len(cfg.AnyAuthorities) > 0 && !principal.HasAnyAuthority(cfg.AnyAuthorities...) {
		return auth.ErrForbidden.Clone().WithMetadata(map[string]any{
			"any_of": cfg.AnyAuthorities,
		})
	}

	return nil
}

func missingTokenError() error {
	return auth.ErrUnauthenticated.Clone().WithMetadata(map[string]any{
		"reason": "TOKEN_MISSING",
	})
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: tokenware configuration: Authenticator is required.")
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = auth.ErrorResponse
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = auth.DefaultPrincipalKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = auth.WithPrincipal
	}

	return cfg
}

// ExtractRawToken returns the first token found by extractors
func ExtractRawToken(c router.Context, extractors []TokenExtractor) (string, bool) {
	for _, extractor := range extractors {
		if raw := extractor(c); raw != "" {
			return raw, true
		}
	}
	return "", false
}

type TokenExtractor func(c router.Context) string

func GetExtractors(tokenLookup string, authScheme string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// tokenFromHeader extracts the token from a header. Headers other than
// Authorization may carry the bare token without the scheme prefix.
func tokenFromHeader(header string, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) string {
		value := strings.TrimSpace(c.Header(header))
		if value == "" {
			return ""
		}

		l := len(authScheme)
		if l > 0 && len(value) > l+1 && strings.EqualFold(value[:l], authScheme) && value[l] == ' ' {
			return strings.TrimSpace(value[l:])
		}

		if strings.EqualFold(header, router.HeaderAuthorization) {
			return ""
		}
		return value
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c router.Context) string {
		return c.Query(param, "")
	}
}

func tokenFromParam(param string) TokenExtractor {
	return func(c router.Context) string {
		return c.Param(param)
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c router.Context) string {
		return c.Cookies(name)
	}
}
