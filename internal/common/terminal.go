package common

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// TerminalHeader identifies the front panel or kiosk driving a request.
const TerminalHeader = "X-Terminal-ID"

type ctxKey string

const terminalIDKey ctxKey = "vending/terminal-id"

// WithTerminalID stores the terminal identifier on ctx.
func WithTerminalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, terminalIDKey, id)
}

// TerminalID extracts the terminal identifier from ctx if present.
func TerminalID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(terminalIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Terminals admits the terminal header only for panels registered with
// the machine. Without a registry every caller is anonymous and is
// identified by its address.
type Terminals struct {
	Allowed []string
}

// Middleware copies a registered terminal id into the request context and
// rejects ids that are not registered.
func (t Terminals) Middleware(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(t.Allowed))
	for _, id := range t.Allowed {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(TerminalHeader))
		if id == "" || len(allowed) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := allowed[id]; !ok {
			JSONError(w, http.StatusForbidden, "UNKNOWN_TERMINAL", "terminal is not registered with this machine", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTerminalID(r.Context(), id)))
	})
}

// Caller names whoever is driving the request: "terminal:<id>" for a
// registered panel, "ip:<addr>" otherwise. The address is the connection
// peer as rewritten by the trusted proxy middleware, never a raw header.
func Caller(r *http.Request) string {
	if id, ok := TerminalID(r.Context()); ok {
		return "terminal:" + id
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return "ip:" + addr
}

// ClientIP returns the address a request claims to come from, preferring
// forwarded headers. It is for logs only; identity uses Caller.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
