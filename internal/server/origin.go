package server

import (
	"strconv"

	"github.com/conneroisu/burrow/internal/validation"
)

// isAllowedOrigin accepts configured origins and the server's own loopback
// addresses.
func (s *Server) isAllowedOrigin(origin string) bool {
	loopback := []string{"localhost", "127.0.0.1", s.cfg.Server.Host}
	return validation.ValidateOrigin(origin, s.cfg.Server.AllowedOrigins, loopback, strconv.Itoa(s.cfg.Server.Port)) == nil
}
