package repository

import (
	"context"
	"errors"
	"testing"
)

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	a, err := OpenArtifacts("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	if _, err := a.Get(ctx, "model/5k/x"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}

	for _, k := range []string{"model/5k/a", "model/5k/b", "model/10k/c"} {
		if err := a.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	data, err := a.Get(ctx, "model/5k/b")
	if err != nil || string(data) != "model/5k/b" {
		t.Errorf("unexpected value %q (%v)", data, err)
	}

	keys, err := a.Keys(ctx, "model/5k/")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "model/5k/a" {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := a.Delete(ctx, "model/5k/a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.Delete(ctx, "model/5k/a"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if _, err := a.Get(ctx, "model/5k/a"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("expected deleted key to be gone, got %v", err)
	}
}

func TestArtifacts_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, err := OpenArtifacts(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := a.Put(ctx, "model/mile/z", []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := OpenArtifacts(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = b.Close() }()
	data, err := b.Get(ctx, "model/mile/z")
	if err != nil || len(data) != 3 {
		t.Errorf("expected persisted artifact, got %v (%v)", data, err)
	}
}
