package ctxutil

import "context"

type requestMetaKey struct{}

// RequestMeta identifies the HTTP request a context belongs to.
type RequestMeta struct {
	RequestID string
	TraceID   string
	Route     string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

// TxMetadata is the subset of RequestMeta attached to database transactions.
func (m RequestMeta) TxMetadata() map[string]any {
	out := make(map[string]any, 3)
	if m.RequestID != "" {
		out["request_id"] = m.RequestID
	}
	if m.TraceID != "" {
		out["trace_id"] = m.TraceID
	}
	if m.Route != "" {
		out["route"] = m.Route
	}
	return out
}
