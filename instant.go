package layerz

import (
	"log/slog"
	"net/http"
)

// InstantCookie is the cookie that requests an instant trace.
const InstantCookie = "scoutapminstant"

// Gate inspects inbound requests for an instant-trace token and marks the
// request for full-detail capture when one is present.
type Gate struct {
	// Cookie is the cookie carrying the token.
	Cookie string
	// Header optionally carries the token when the cookie is absent.
	Header string

	logger *slog.Logger
}

// NewGate builds a gate for InstantCookie and the configured instant_header.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	g := &Gate{Cookie: InstantCookie, logger: logger}
	if cfg != nil {
		g.Header = cfg.Value(ConfigInstantHeader)
	}
	return g
}

// Check sets the instant key of req from the token carried by r.
// It reports whether a token was found.
func (g *Gate) Check(req *Request, r *http.Request) bool {
	if req == nil || r == nil {
		return false
	}

	key := ""
	if c, err := r.Cookie(g.Cookie); err == nil {
		key = c.Value
	}
	if key == "" && g.Header != "" {
		key = r.Header.Get(g.Header)
	}
	if key == "" {
		return false
	}

	if req.SetInstantKey(key) && g.logger != nil {
		g.logger.Info("instant trace request", "key", key, "path", r.URL.Path)
	}
	return true
}
