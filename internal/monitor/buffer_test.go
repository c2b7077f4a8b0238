package monitor

import (
	"testing"
	"time"
)

func TestBufferFlushesOnSize(t *testing.T) {
	b := NewBuffer(3, time.Minute)
	b.Add("c1", "one")
	b.Add("c1", "two")
	if b.Len("c1") != 2 {
		t.Fatalf("len = %d, want 2", b.Len("c1"))
	}
	b.Add("c1", "three")
	if b.Len("c1") != 0 {
		t.Fatalf("batch not flushed at size cap: %d", b.Len("c1"))
	}
}

func TestBufferDefaults(t *testing.T) {
	b := NewBuffer(0, 0)
	if b.size != 50 || b.timeout != 10*time.Minute {
		t.Errorf("defaults = size %d timeout %v", b.size, b.timeout)
	}
}
