package context

import (
	"context"
	"testing"
)

func TestEnsureCorrelationIDIsStable(t *testing.T) {
	ctx, first := EnsureCorrelationID(context.Background())
	if first == "" {
		t.Fatalf("expected correlation id to be generated")
	}
	_, second := EnsureCorrelationID(ctx)
	if first != second {
		t.Fatalf("expected %s to be reused, got %s", first, second)
	}
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), "user", "42")
	kind, id := ActorFromContext(ctx)
	if kind != "user" || id != "42" {
		t.Fatalf("unexpected actor %s/%s", kind, id)
	}

	kind, id = ActorFromContext(context.Background())
	if kind != "" || id != "" {
		t.Fatalf("expected empty actor")
	}
}
