// Package routertest provides an in-memory router.Context for handler tests.
package routertest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-router"
)

type routerContext = router.Context

// Context records what a handler writes. Only the methods below are
// backed; anything else reaches the nil embedded router.Context.
type Context struct {
	routerContext

	StdContext     context.Context
	RequestBody    []byte
	RequestHeaders map[string]string
	ParamValues    map[string]string
	CookieValues   map[string]string
	LocalValues    map[any]any

	ResponseStatus  int
	ResponseHeaders map[string]string
	ResponseBody    []byte
	NextCalled      bool
}

// NewContext returns a context carrying a JSON request body
func NewContext(body string) *Context {
	return &Context{
		StdContext:      context.Background(),
		RequestBody:     []byte(body),
		RequestHeaders:  map[string]string{},
		ParamValues:     map[string]string{},
		CookieValues:    map[string]string{},
		LocalValues:     map[any]any{},
		ResponseStatus:  http.StatusOK,
		ResponseHeaders: map[string]string{},
	}
}

// WithHeader sets a request header
func (c *Context) WithHeader(key, value string) *Context {
	c.RequestHeaders[strings.ToLower(key)] = value
	return c
}

// WithCookie sets a request cookie
func (c *Context) WithCookie(name, value string) *Context {
	c.CookieValues[name] = value
	return c
}

// Decode unmarshals the response body into out
func (c *Context) Decode(out any) error {
	return json.Unmarshal(c.ResponseBody, out)
}

func (c *Context) Next() error {
	c.NextCalled = true
	return nil
}

func (c *Context) Context() context.Context {
	return c.StdContext
}

func (c *Context) SetContext(ctx context.Context) {
	c.StdContext = ctx
}

func (c *Context) Status(code int) router.Context {
	c.ResponseStatus = code
	return c
}

func (c *Context) JSON(code int, val any) error {
	body, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.ResponseStatus = code
	c.ResponseBody = body
	return nil
}

func (c *Context) SendString(s string) error {
	c.ResponseBody = []byte(s)
	return nil
}

func (c *Context) SetHeader(key, val string) router.Context {
	c.ResponseHeaders[key] = val
	return c
}

func (c *Context) Header(key string) string {
	return c.RequestHeaders[strings.ToLower(key)]
}

func (c *Context) Bind(i any) error {
	if len(c.RequestBody) == 0 {
		return nil
	}
	return json.Unmarshal(c.RequestBody, i)
}

func (c *Context) Cookies(key string, defaultValue ...string) string {
	if v, ok := c.CookieValues[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *Context) Param(key string, defaultValue ...string) string {
	if v, ok := c.ParamValues[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *Context) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.LocalValues[key] = value[0]
		return value[0]
	}
	return c.LocalValues[key]
}
