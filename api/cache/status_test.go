package cache

import (
	"context"
	"errors"
	"testing"

	"mediaDownloader/api/models"
)

func TestStatusKey(t *testing.T) {
	if got := statusKey("abc"); got != "download:status:abc" {
		t.Errorf("Expected download:status:abc, got %s", got)
	}
}

func TestNopStatusCache_AlwaysMisses(t *testing.T) {
	var c SnapshotCache = NopStatusCache{}
	ctx := context.Background()

	if err := c.Set(ctx, &models.StatusSnapshot{JobID: "abc", Status: models.StatusQueued}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := c.Get(ctx, "abc")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss, got %v", err)
	}
}
