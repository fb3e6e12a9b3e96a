// Package middleware holds the HTTP middleware stack of the server.
package middleware

import (
	"net/http"

	"github.com/conneroisu/burrow/internal/logging"
)

// Middleware represents a single middleware function
type Middleware func(http.Handler) http.Handler

// OriginValidator decides which browser origins get CORS headers.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// Chain is an ordered middleware stack. The first middleware added is the
// outermost: requests pass through middlewares in the order they were added.
type Chain struct {
	middlewares []Middleware
}

// Dependencies are what the default stack needs.
type Dependencies struct {
	Logger  logging.Logger
	Origins OriginValidator
}

// NewChain builds the default stack, outermost first: panic recovery,
// request logging, security headers, CORS.
func NewChain(deps Dependencies) *Chain {
	if deps.Origins == nil {
		panic("middleware: origin validator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("http")

	c := &Chain{middlewares: make([]Middleware, 0, 4)}
	c.Use(Recovery(logger))
	c.Use(Logging(logger))
	c.Use(SecurityHeaders)
	c.Use(CORS(deps.Origins))
	return c
}

// Use appends a middleware inside the ones already added.
func (c *Chain) Use(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Len returns the number of middlewares.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// Apply wraps h with the whole chain.
func (c *Chain) Apply(h http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}
