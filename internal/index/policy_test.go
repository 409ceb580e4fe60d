package index

import (
	"testing"
	"time"
)

func TestSnapshotPolicy_Every(t *testing.T) {
	p := NewSnapshotPolicy(3, 0)
	now := time.Unix(1000, 0)
	if p.Observe(now) || p.Observe(now) {
		t.Fatal("fired before threshold")
	}
	if !p.Observe(now) {
		t.Fatal("did not fire at threshold")
	}
	p.Reset(now)
	if p.Pending() != 0 {
		t.Errorf("pending after reset = %d", p.Pending())
	}
	if p.Observe(now) {
		t.Error("fired right after reset")
	}
}

func TestSnapshotPolicy_Interval(t *testing.T) {
	p := NewSnapshotPolicy(0, time.Minute)
	start := time.Unix(1000, 0)
	p.Reset(start)
	if p.Observe(start.Add(30 * time.Second)) {
		t.Error("fired before interval")
	}
	if !p.Observe(start.Add(61 * time.Second)) {
		t.Error("did not fire after interval")
	}
}

func TestSnapshotPolicy_Disabled(t *testing.T) {
	var nilPolicy *SnapshotPolicy
	if nilPolicy.Observe(time.Now()) || nilPolicy.Enabled() {
		t.Error("nil policy should never fire")
	}
	p := NewSnapshotPolicy(0, 0)
	for i := 0; i < 100; i++ {
		if p.Observe(time.Now()) {
			t.Fatal("zero policy fired")
		}
	}
}
