package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/overlaykit/chat-relay/db"
	"github.com/overlaykit/chat-relay/testutil"
)

func TestOAuthTokenRoundtrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	if err := db.UpsertOAuthToken(ctx, database, "youtube", "at-1", "rt-1", expiry, "scope-a"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	access, refresh, gotExpiry, scope, err := db.GetOAuthToken(ctx, database, "youtube")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "at-1" || refresh != "rt-1" || scope != "scope-a" {
		t.Errorf("roundtrip = %q/%q/%q", access, refresh, scope)
	}
	if !gotExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", gotExpiry, expiry)
	}

	// Upsert replaces the row for the same provider.
	if err := db.UpsertOAuthToken(ctx, database, "youtube", "at-2", "rt-2", expiry, "scope-a"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	access, refresh, _, _, err = db.GetOAuthToken(ctx, database, "youtube")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if access != "at-2" || refresh != "rt-2" {
		t.Errorf("after update = %q/%q, want at-2/rt-2", access, refresh)
	}
}

func TestGetOAuthTokenMissing(t *testing.T) {
	database := testutil.SetupTestDB(t)

	access, refresh, expiry, scope, err := db.GetOAuthToken(context.Background(), database, "no-such-provider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "" || refresh != "" || scope != "" || !expiry.IsZero() {
		t.Errorf("expected zero values for a missing row, got %q/%q/%v/%q", access, refresh, expiry, scope)
	}
}

func TestKVRoundtrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	v, err := db.GetKV(ctx, database, "missing-key")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if v != "" {
		t.Errorf("missing key = %q, want empty", v)
	}

	if err := db.SetKV(ctx, database, "relay_enabled", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err = db.GetKV(ctx, database, "relay_enabled"); err != nil || v != "1" {
		t.Errorf("get = %q, %v, want 1", v, err)
	}

	if err := db.SetKV(ctx, database, "relay_enabled", "0"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, err = db.GetKV(ctx, database, "relay_enabled"); err != nil || v != "0" {
		t.Errorf("get after overwrite = %q, %v, want 0", v, err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	// SetupTestDB already migrated once; a second run must not fail.
	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
