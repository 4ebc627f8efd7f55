package httpmiddleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures CORS for the back-office web client.
type CORSConfig struct {
	// Origins allowed to call the API. Empty or "*" allows any origin.
	Origins []string
	// Headers the browser may send; defaults to Content-Type and X-API-Key.
	Headers []string
	// MaxAge of a cached preflight, in seconds.
	MaxAge int
}

type corsPolicy struct {
	any     bool
	origins map[string]struct{}
	methods string
	headers string
	expose  string
	maxAge  string
}

func (p *corsPolicy) allowOrigin(origin string) string {
	if p.any {
		return "*"
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return origin
	}
	return ""
}

// CORS answers preflight requests and sets Access-Control headers on
// requests from allowed origins. Credentials are never allowed since the
// API authenticates with a header key.
func CORS(cfg CORSConfig) Middleware {
	p := &corsPolicy{
		any:     len(cfg.Origins) == 0 || slices.Contains(cfg.Origins, "*"),
		origins: make(map[string]struct{}, len(cfg.Origins)),
		methods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		headers: "Content-Type, X-API-Key, X-Request-ID",
		expose:  "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After",
	}
	for _, o := range cfg.Origins {
		p.origins[strings.ToLower(o)] = struct{}{}
	}
	if len(cfg.Headers) > 0 {
		p.headers = strings.Join(cfg.Headers, ", ")
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !p.any {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := p.allowOrigin(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", p.methods)
					h.Set("Access-Control-Allow-Headers", p.headers)
					if p.maxAge != "" {
						h.Set("Access-Control-Max-Age", p.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", p.expose)
			}
			next.ServeHTTP(w, r)
		})
	}
}
