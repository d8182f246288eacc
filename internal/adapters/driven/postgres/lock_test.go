package postgres

import (
	"context"
	"testing"
	"time"
)

func TestHashLockName(t *testing.T) {
	if hashLockName("sweep") != hashLockName("sweep") {
		t.Error("hash must be stable")
	}
	if hashLockName("sweep") == hashLockName("retry") {
		t.Error("distinct names should not collide")
	}
}

func TestAdvisoryLock_Exclusion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	a := NewAdvisoryLock(db)
	b := NewAdvisoryLock(db)

	ok, err := a.Acquire(ctx, "sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	// b takes its own session, so the server refuses it
	ok, err = b.Acquire(ctx, "sweep", time.Minute)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if ok {
		t.Fatal("second instance must not acquire a held lock")
	}

	ok, _ = a.Acquire(ctx, "sweep", time.Minute)
	if ok {
		t.Error("re-acquire by the holder must report held")
	}

	if err := b.Release(ctx, "sweep"); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	if err := a.Release(ctx, "sweep"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	ok, err = b.Acquire(ctx, "sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
	_ = b.Release(ctx, "sweep")
}
