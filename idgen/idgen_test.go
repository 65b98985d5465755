package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7(t *testing.T) {
	gen := UUIDv7()
	a, b := gen(), gen()
	if a == b {
		t.Fatal("duplicate IDs")
	}
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatal(err)
	}
	if u.Version() != 7 {
		t.Fatalf("version %d", u.Version())
	}
	if !Valid(a) || Valid("nope") {
		t.Fatal("Valid")
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for range 100 {
		cur := gen()
		if cur <= prev {
			t.Fatalf("%s not after %s", cur, prev)
		}
		prev = cur
	}
}

func TestShort(t *testing.T) {
	id := Short(12)()
	if len(id) != 12 {
		t.Fatalf("length %d", len(id))
	}
	if strings.Trim(id, "0123456789abcdefghijklmnopqrstuvwxyz") != "" {
		t.Fatalf("unexpected characters in %q", id)
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("req_", func() string { return "abc" })
	if got := gen(); got != "req_abc" {
		t.Fatalf("got %q", got)
	}
}
