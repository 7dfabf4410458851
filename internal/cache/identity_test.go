package cache

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

func TestNoop_AlwaysMisses(t *testing.T) {
	var c Identity = Noop{}
	ctx := context.Background()

	c.Set(ctx, &models.User{ID: "u1", Email: "a@x.com"})

	if u, ok := c.Get(ctx, "u1"); ok || u != nil {
		t.Fatalf("Noop must always miss, got (%v, %v)", u, ok)
	}

	// must not panic
	c.Invalidate(ctx, "u1")
}
