package eventlog

import (
	"math/rand"
	"testing"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
)

func TestExtract_PicksLatestSnapshotBeforeCutoff(t *testing.T) {
	entries := []event.Record{snap(0), delta(1000), snap(5000), delta(9000)}
	got := Extract(entries, 4000*time.Millisecond)
	if ts := timestamps(got); !equalTS(ts, 5000, 9000) {
		t.Fatalf("got %v, want [5000 9000]", ts)
	}
	if !got[0].IsSnapshot() {
		t.Fatal("first element is not a snapshot")
	}
}

func TestExtract_NoSnapshot(t *testing.T) {
	entries := []event.Record{delta(100), delta(200)}
	if got := Extract(entries, 50*time.Millisecond); len(got) != 0 {
		t.Fatalf("got %v, want empty", timestamps(got))
	}
}

func TestExtract_Empty(t *testing.T) {
	if got := Extract(nil, time.Second); got != nil {
		t.Fatalf("got %v", got)
	}
}

func TestExtract_FallsBackToFirstSnapshot(t *testing.T) {
	// Window larger than the whole log: no snapshot at or before cutoff.
	entries := []event.Record{delta(100), snap(200), delta(300), snap(400), delta(500)}
	got := Extract(entries, 10*time.Second)
	if ts := timestamps(got); !equalTS(ts, 200, 300, 400, 500) {
		t.Fatalf("got %v, want [200 300 400 500]", ts)
	}
}

func TestExtract_FallbackAnchorAfterCutoff(t *testing.T) {
	entries := []event.Record{delta(0), delta(100), snap(900), delta(950), delta(1000)}
	got := Extract(entries, 200*time.Millisecond)
	if ts := timestamps(got); !equalTS(ts, 900, 950, 1000) {
		t.Fatalf("got %v, want [900 950 1000]", ts)
	}
}

func TestExtract_StripsOutOfWindowDeltasAfterAnchor(t *testing.T) {
	entries := []event.Record{snap(0), delta(100), delta(500), delta(1000)}
	got := Extract(entries, 600*time.Millisecond)
	// cutoff = 400: anchor snap@0 stays, delta@100 is dropped.
	if ts := timestamps(got); !equalTS(ts, 0, 500, 1000) {
		t.Fatalf("got %v, want [0 500 1000]", ts)
	}
}

func TestExtract_SnapshotAtCutoff(t *testing.T) {
	entries := []event.Record{snap(0), delta(100), snap(200), delta(300), delta(1000)}
	got := Extract(entries, 800*time.Millisecond)
	if ts := timestamps(got); !equalTS(ts, 200, 300, 1000) {
		t.Fatalf("got %v, want [200 300 1000]", ts)
	}
}

func TestExtract_OnlySnapshots(t *testing.T) {
	entries := []event.Record{snap(500), snap(600)}
	got := Extract(entries, 10*time.Second)
	if len(got) == 0 {
		t.Fatal("expected non-empty result")
	}
	if got[0].Timestamp != 500 {
		t.Errorf("anchor: got %d, want 500", got[0].Timestamp)
	}
}

func TestExtract_TieBreakLatestAppended(t *testing.T) {
	a := event.Snapshot(100, []byte(`"a"`))
	b := event.Snapshot(100, []byte(`"b"`))
	got := Extract([]event.Record{a, b, delta(200)}, 100*time.Millisecond)
	if len(got) != 2 || string(got[0].Data) != `"b"` {
		t.Fatalf("got %+v, want anchor b", got)
	}
}

func TestExtract_NegativeDurationIsZero(t *testing.T) {
	entries := []event.Record{snap(0), delta(100), snap(200)}
	got := Extract(entries, -time.Second)
	if ts := timestamps(got); !equalTS(ts, 200) {
		t.Fatalf("got %v, want [200]", ts)
	}
}

func TestExtract_DoesNotModifyInput(t *testing.T) {
	entries := []event.Record{snap(0), delta(10), delta(20)}
	out := Extract(entries, 5*time.Millisecond)
	out[0].Timestamp = 77
	if entries[0].Timestamp != 0 {
		t.Fatal("Extract result aliases input")
	}
}

func TestExtract_AnchorAndCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 200; iter++ {
		var entries []event.Record
		var ts int64
		hasSnap := false
		n := 1 + rng.Intn(60)
		for i := 0; i < n; i++ {
			ts += 1 + rng.Int63n(300)
			if rng.Intn(8) == 0 {
				entries = append(entries, snap(ts))
				hasSnap = true
			} else {
				entries = append(entries, delta(ts))
			}
		}
		d := time.Duration(rng.Int63n(4000)) * time.Millisecond
		got := Extract(entries, d)

		if !hasSnap {
			if len(got) != 0 {
				t.Fatalf("iter %d: no snapshot but got %d entries", iter, len(got))
			}
			continue
		}
		if len(got) == 0 || !got[0].IsSnapshot() {
			t.Fatalf("iter %d: result does not start with a snapshot", iter)
		}

		// Every in-window entry after the anchor must be present, in order.
		cutoff := entries[len(entries)-1].Timestamp - d.Milliseconds()
		anchorIdx := -1
		for i, e := range entries {
			if e.IsSnapshot() && e.Timestamp == got[0].Timestamp {
				anchorIdx = i
			}
		}
		j := 0
		for _, e := range entries[anchorIdx:] {
			if !e.IsSnapshot() && e.Timestamp < cutoff {
				continue
			}
			if j >= len(got) || got[j].Timestamp != e.Timestamp || got[j].Type != e.Type {
				t.Fatalf("iter %d: gap at result index %d", iter, j)
			}
			j++
		}
		if j != len(got) {
			t.Fatalf("iter %d: result has %d extra entries", iter, len(got)-j)
		}
	}
}
