package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/testutil"
)

// createTestStore opens a fresh store in a temp dir driven by a fake clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, _ := createTestStoreWithClock(t)
	return s
}

func createTestStoreWithClock(t *testing.T) (*Store, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clk))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clk
}

// testAsset returns a fully populated asset record stamped at now.
func testAsset(key string, now time.Time) model.AssetRecord {
	return model.AssetRecord{
		AssetKey: key,
		Name:     key,
		Type:     model.AssetTypeSource,
		Group:    "raw",
		Pipeline: "ingest",
		Owners:   []string{"data-eng@example.com", "oncall"},
		Tags:     map[string]string{"tier": "gold"},
		Metadata: map[string]any{
			"thresholds": map[string]any{"volume": 0.3},
			"columns":    []any{"id", "amount"},
		},
		LastUpdated: now,
		LastChecked: now,
	}
}
