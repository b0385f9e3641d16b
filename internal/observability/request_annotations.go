package observability

import (
	"context"
	"log/slog"
	"sync"
)

type annotationsKey struct{}

// RequestAnnotations collects attributes discovered while a request is being
// served, such as the authenticated user, for the access log line.
type RequestAnnotations struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

func WithRequestAnnotations(ctx context.Context) (context.Context, *RequestAnnotations) {
	a := &RequestAnnotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// AnnotateRequest is a no-op outside an annotated request. A repeated key
// replaces the earlier value.
func AnnotateRequest(ctx context.Context, key string, value any) {
	a, ok := ctx.Value(annotationsKey{}).(*RequestAnnotations)
	if !ok || a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.attrs {
		if a.attrs[i].Key == key {
			a.attrs[i] = slog.Any(key, value)
			return
		}
	}
	a.attrs = append(a.attrs, slog.Any(key, value))
}

func (a *RequestAnnotations) Attrs() []any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]any, len(a.attrs))
	for i, attr := range a.attrs {
		out[i] = attr
	}
	return out
}
