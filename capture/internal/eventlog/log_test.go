package eventlog

import (
	"math/rand"
	"testing"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
)

func snap(ts int64) event.Record  { return event.Snapshot(ts, nil) }
func delta(ts int64) event.Record { return event.Delta(ts, nil) }

func timestamps(recs []event.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.Timestamp
	}
	return out
}

func equalTS(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAppend_EvictsOldDeltasKeepsSnapshots(t *testing.T) {
	l := New(300_000 * time.Millisecond)
	l.Append(snap(0))
	l.Append(delta(1000))
	l.Append(delta(400_000))

	got := l.All()
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(got), timestamps(got))
	}
	if !got[0].IsSnapshot() || got[0].Timestamp != 0 {
		t.Errorf("entry[0]: got %+v, want snapshot@0", got[0])
	}
	if got[1].Timestamp != 400_000 {
		t.Errorf("entry[1]: got ts=%d, want 400000", got[1].Timestamp)
	}
}

func TestAppend_CutoffIsInclusive(t *testing.T) {
	l := New(time.Second)
	l.Append(delta(0))
	l.Append(delta(1000))
	if got := timestamps(l.All()); !equalTS(got, 0, 1000) {
		t.Fatalf("got %v, want [0 1000]", got)
	}
	l.Append(delta(1001))
	if got := timestamps(l.All()); !equalTS(got, 1000, 1001) {
		t.Fatalf("got %v, want [1000 1001]", got)
	}
}

func TestAppend_RetentionInvariant(t *testing.T) {
	const retention = 5_000
	rng := rand.New(rand.NewSource(7))
	l := New(retention * time.Millisecond)

	var ts int64
	var snapshots int
	for i := 0; i < 2000; i++ {
		ts += rng.Int63n(400)
		var rec event.Record
		if rng.Intn(25) == 0 {
			rec = snap(ts)
			snapshots++
		} else {
			rec = delta(ts)
		}
		l.Append(rec)

		gotSnaps := 0
		for _, e := range l.All() {
			if e.IsSnapshot() {
				gotSnaps++
				continue
			}
			if e.Timestamp < ts-retention {
				t.Fatalf("append %d: delta@%d retained past cutoff %d", i, e.Timestamp, ts-retention)
			}
		}
		if gotSnaps != snapshots {
			t.Fatalf("append %d: %d snapshots retained, want %d", i, gotSnaps, snapshots)
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	l := New(time.Minute)
	l.Append(snap(1))
	got := l.All()
	got[0].Timestamp = 99
	if l.All()[0].Timestamp != 1 {
		t.Fatal("All exposed internal storage")
	}
}

func TestClearAndSetAll(t *testing.T) {
	l := New(time.Minute)
	l.Append(snap(1))
	l.Append(delta(2))
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len after Clear: %d", l.Len())
	}

	in := []event.Record{snap(10), delta(20)}
	l.SetAll(in)
	in[0].Timestamp = 0
	if got := timestamps(l.All()); !equalTS(got, 10, 20) {
		t.Fatalf("got %v, want [10 20]", got)
	}
}

func TestTrim(t *testing.T) {
	in := []event.Record{snap(0), delta(10), delta(500), snap(600), delta(1000)}
	got := Trim(in, 500*time.Millisecond)
	if ts := timestamps(got); !equalTS(ts, 0, 500, 600, 1000) {
		t.Fatalf("got %v", ts)
	}
	if len(in) != 5 {
		t.Fatal("Trim modified its input")
	}
	if Trim(nil, time.Second) != nil {
		t.Fatal("Trim(nil) should be nil")
	}
}
