package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	// AllowedOrigins accepts exact origins, "*", or a leading-wildcard host
	// such as "https://*.example.com".
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// CORS answers preflight requests itself and decorates simple requests from
// allowed origins. Disallowed origins get no CORS headers at all.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	if len(opt.AllowedMethods) == 0 {
		opt.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(opt.AllowedHeaders) == 0 {
		opt.AllowedHeaders = []string{"Content-Type", "Authorization", "Accept"}
	}
	if opt.MaxAgeSeconds == 0 {
		opt.MaxAgeSeconds = 600
	}

	methods := strings.Join(opt.AllowedMethods, ", ")
	headers := strings.Join(opt.AllowedHeaders, ", ")
	exposed := strings.Join(opt.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(opt.MaxAgeSeconds)
	match := originMatcher(opt.AllowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")

			if origin != "" && match(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				if opt.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if preflight {
					h.Set("Access-Control-Allow-Methods", methods)
					h.Set("Access-Control-Allow-Headers", headers)
					h.Set("Access-Control-Max-Age", maxAge)
				} else if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originMatcher(allowed []string) func(string) bool {
	var exact []string
	var suffixes [][2]string // scheme://, .domain
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			return func(string) bool { return true }
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			suffixes = append(suffixes, [2]string{scheme + "://", host})
		default:
			exact = append(exact, o)
		}
	}

	return func(origin string) bool {
		for _, o := range exact {
			if o == origin {
				return true
			}
		}
		for _, s := range suffixes {
			rest, ok := strings.CutPrefix(origin, s[0])
			if ok && strings.HasSuffix(rest, s[1]) && len(rest) > len(s[1]) {
				return true
			}
		}
		return false
	}
}
