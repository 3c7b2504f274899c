package security

import (
	"net/http"
	"strconv"
)

// Headers sets response headers for the kiosk front end. Balances and change
// must never be served from a cache, and the panel never needs device APIs.
type Headers struct {
	Enable bool
	// MachineID is echoed in X-Machine-ID so a panel can tell which machine
	// answered when several share a proxy.
	MachineID             string
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

var kioskHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()"},
}

// Middleware attaches the headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for _, kv := range kioskHeaders {
			headers.Set(kv[0], kv[1])
		}
		if h.MachineID != "" {
			headers.Set("X-Machine-ID", h.MachineID)
		}
		if hsts != "" && r.TLS != nil {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.EnableHSTS {
		return ""
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}
