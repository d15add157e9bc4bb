package services

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryHealthCheckAll(t *testing.T) {
	reg := NewRegistry()
	down := errors.New("down")

	reg.Register("storage", NewCheckFunc("sqlite", func(ctx context.Context) error { return nil }))
	reg.Register("redis", NewCheckFunc("redis", func(ctx context.Context) error { return down }))

	if got := reg.List(); len(got) != 2 || got[0] != "redis" || got[1] != "storage" {
		t.Fatalf("unexpected provider list %v", got)
	}

	results := reg.HealthCheckAll(context.Background())
	if results["storage"] != nil {
		t.Errorf("expected storage healthy, got %v", results["storage"])
	}
	if !errors.Is(results["redis"], down) {
		t.Errorf("expected redis down, got %v", results["redis"])
	}

	reg.CloseAll()
	if len(reg.List()) != 0 {
		t.Fatal("expected registry empty after CloseAll")
	}
}
