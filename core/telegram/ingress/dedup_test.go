package ingress

import (
	"testing"
	"time"
)

func TestDeduperWindow(t *testing.T) {
	d, err := newDeduper(2, time.Minute)
	if err != nil {
		t.Fatalf("newDeduper: %v", err)
	}
	now := time.Unix(1700000000, 0)
	d.now = func() time.Time { return now }

	if d.isDuplicate(1) {
		t.Fatal("first sight must not be a duplicate")
	}
	if !d.isDuplicate(1) {
		t.Fatal("second sight must be a duplicate")
	}
	if d.isDuplicate(0) {
		t.Fatal("zero update id is never deduplicated")
	}

	now = now.Add(2 * time.Minute)
	if d.isDuplicate(1) {
		t.Fatal("expired entry must not be a duplicate")
	}

	d.isDuplicate(2)
	d.isDuplicate(3)
	if d.isDuplicate(1) {
		t.Fatal("evicted entry must not be a duplicate")
	}
}
