package index

import (
	"testing"

	"github.com/jpl-au/indexcore/storage"
)

func openTestEnv(t *testing.T) *storage.Env {
	t.Helper()
	env, err := storage.Open(t.TempDir(), "test.indexcore", false)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func TestIndexStoragePriorityDefaultsToNormal(t *testing.T) {
	env := openTestEnv(t)
	var got Priority
	env.View(func(tx *storage.Tx) error {
		got = indexStorage.ReadPriority(tx)
		return nil
	})
	if got != PriorityNormal {
		t.Fatalf("expected default priority Normal, got %v", got)
	}
}

func TestIndexStoragePriorityRoundTrips(t *testing.T) {
	env := openTestEnv(t)
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WritePriority(tx, PriorityIdle)
	})
	var got Priority
	env.View(func(tx *storage.Tx) error {
		got = indexStorage.ReadPriority(tx)
		return nil
	})
	if got != PriorityIdle {
		t.Fatalf("expected Idle, got %v", got)
	}
}

func TestIndexStorageLockRoundTrips(t *testing.T) {
	env := openTestEnv(t)
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLock(tx, LockedError)
	})
	var got LockMode
	env.View(func(tx *storage.Tx) error {
		got = indexStorage.ReadLock(tx)
		return nil
	})
	if got != LockedError {
		t.Fatalf("expected LockedError, got %v", got)
	}
}

func TestIndexStorageUpdateStatsAccumulates(t *testing.T) {
	env := openTestEnv(t)
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.UpdateStats(tx, 1000, 50, BatchStats{MapCount: 3, DeleteCount: 1})
	})
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.UpdateStats(tx, 2000, 25, BatchStats{MapCount: 2})
	})

	var s Stats
	env.View(func(tx *storage.Tx) error {
		s = indexStorage.ReadStats(tx)
		return nil
	})
	if s.BatchCount != 2 || s.MapCount != 5 || s.DeleteCount != 1 {
		t.Fatalf("expected accumulated counters, got %+v", s)
	}
	if s.LastIndexingTime != 2025 {
		t.Fatalf("expected last indexing time 2025, got %d", s.LastIndexingTime)
	}
}

func TestIndexStorageErrorRingBoundsToSize(t *testing.T) {
	env := openTestEnv(t)
	original := ErrorsRingSize
	ErrorsRingSize = 3
	defer func() { ErrorsRingSize = original }()

	for i := 0; i < 5; i++ {
		env.Update(func(tx *storage.Tx) error {
			return indexStorage.RecordError(tx, RecordedError{Timestamp: int64(i), Action: "map"})
		})
	}

	var errs []RecordedError
	env.View(func(tx *storage.Tx) error {
		errs = indexStorage.ReadErrors(tx)
		return nil
	})
	if len(errs) != 3 {
		t.Fatalf("expected ring bounded to 3 entries, got %d", len(errs))
	}
	if errs[0].Timestamp != 2 || errs[2].Timestamp != 4 {
		t.Fatalf("expected oldest entries dropped, got %+v", errs)
	}
}

func TestIndexStorageEtagsDefaultToZero(t *testing.T) {
	env := openTestEnv(t)
	var mapped, tomb Etag
	env.View(func(tx *storage.Tx) error {
		mapped = indexStorage.ReadLastMappedEtag(tx, "users")
		tomb = indexStorage.ReadLastProcessedTombstoneEtag(tx, "users")
		return nil
	})
	if mapped != 0 || tomb != 0 {
		t.Fatalf("expected zero defaults, got mapped=%d tomb=%d", mapped, tomb)
	}
}
