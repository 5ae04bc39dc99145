// Package correlation tags one batch run or webhook delivery with a ULID so
// its log lines sort together.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type runKey struct{}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runKey{}).(string)
	return id
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey{}, id)
}

// EnsureCorrelationID keeps an id already on ctx, so a scheduler run and the
// pipeline stage it drives share one id.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return ContextWithCorrelationID(ctx, id), id
}
