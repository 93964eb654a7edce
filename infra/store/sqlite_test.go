package store

import (
	"context"
	"testing"
	"time"

	"github.com/kilianp07/evshare/core/model"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(t.TempDir() + "/rides.db")
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close repo: %v", err)
		}
	})
	return repo
}

func TestSQLiteCreateGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	r := &model.Ride{ID: "r1", VehicleID: "v1", UserID: "u1", State: model.RideActive, StartTime: time.Now()}
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.VehicleID != "v1" || got.State != model.RideActive {
		t.Fatalf("unexpected ride %#v", got)
	}
}

func TestSQLiteGetUnknown(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil ride, got %#v", got)
	}
}

func TestSQLiteHasActiveRide(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	r := &model.Ride{ID: "r1", VehicleID: "v1", UserID: "u1", State: model.RideActive, StartTime: time.Now()}
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	active, err := repo.HasActiveRide(ctx, "v1")
	if err != nil || !active {
		t.Fatalf("expected active ride, got %v err %v", active, err)
	}
	r.State = model.RideCompleted
	if err := repo.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, err = repo.HasActiveRide(ctx, "v1")
	if err != nil || active {
		t.Fatalf("expected no active ride after completion, got %v err %v", active, err)
	}
}

func TestSQLiteUpdateUnknown(t *testing.T) {
	repo := newTestRepo(t)
	r := &model.Ride{ID: "ghost", State: model.RideFailed, StartTime: time.Now()}
	if err := repo.Update(context.Background(), r); err == nil {
		t.Fatalf("expected error updating unknown ride")
	}
}

func TestSQLiteListByUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"r1", "r2", "r3"} {
		user := "u1"
		if id == "r3" {
			user = "u2"
		}
		r := &model.Ride{ID: id, VehicleID: "v1", UserID: user, State: model.RideCompleted, StartTime: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	rides, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rides) != 2 || rides[0].ID != "r1" || rides[1].ID != "r2" {
		t.Fatalf("unexpected rides %#v", rides)
	}
}
