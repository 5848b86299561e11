// ABOUTME: Unit tests for identity propagation through request contexts
// ABOUTME: Tests attaching and retrieving identities, including absent ones

package auth

import (
	"context"
	"testing"
)

func TestWithIdentity_FromContext(t *testing.T) {
	identity := &Identity{UserID: "user-123", Username: "nikhil"}

	ctx := WithIdentity(context.Background(), identity)
	got := FromContext(ctx)

	if got == nil {
		t.Fatal("FromContext() = nil, want identity")
	}

	if got.UserID != identity.UserID {
		t.Errorf("FromContext() UserID = %q, want %q", got.UserID, identity.UserID)
	}

	if got.Username != identity.Username {
		t.Errorf("FromContext() Username = %q, want %q", got.Username, identity.Username)
	}
}

func TestFromContext_Missing(t *testing.T) {
	got := FromContext(context.Background())
	if got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}

func TestFromContext_NilIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), nil)

	got := FromContext(ctx)
	if got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}
