package obs

import "context"

type (
	routePatternKey struct{}
	outcomeKey      struct{}
)

// WithRoutePattern records the matched chi pattern so metrics and logs use
// the template ("/api/v1/selection") rather than the raw path.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the pattern stored by WithRoutePattern.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	pattern, _ := ctx.Value(routePatternKey{}).(string)
	return pattern
}

// Outcome is filled in by machine handlers and read back by the logging,
// metrics and tracing middleware once the handler returns.
type Outcome struct {
	Operation string
	ErrorCode string
}

// WithOutcome returns ctx carrying an Outcome, reusing one placed by an outer
// middleware.
func WithOutcome(ctx context.Context) (context.Context, *Outcome) {
	if o := OutcomeFromContext(ctx); o != nil {
		return ctx, o
	}
	o := &Outcome{}
	return context.WithValue(ctx, outcomeKey{}, o), o
}

// OutcomeFromContext returns nil outside an instrumented request.
func OutcomeFromContext(ctx context.Context) *Outcome {
	if ctx == nil {
		return nil
	}
	o, _ := ctx.Value(outcomeKey{}).(*Outcome)
	return o
}

// MarkOperation names the machine operation served by the request.
func MarkOperation(ctx context.Context, op string) {
	if o := OutcomeFromContext(ctx); o != nil {
		o.Operation = op
	}
}

// MarkError records the error code returned to the caller.
func MarkError(ctx context.Context, code string) {
	if o := OutcomeFromContext(ctx); o != nil {
		o.ErrorCode = code
	}
}
