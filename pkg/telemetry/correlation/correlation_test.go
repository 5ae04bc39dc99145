package correlation

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	if _, err := ulid.ParseStrict(cid); err != nil {
		t.Fatalf("expected ulid, got %q: %v", cid, err)
	}
	if got := ExtractCorrelationID(ctx); got != cid {
		t.Fatalf("expected %q on context, got %q", cid, got)
	}

	_, again := EnsureCorrelationID(ctx)
	if again != cid {
		t.Fatalf("expected existing id to be kept, got %q", again)
	}
}
