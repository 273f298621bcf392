package rt

import "testing"

func TestPrepare_NothingRequested(t *testing.T) {
	if err := Prepare(false, 0); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
}

func TestPrepare_PriorityRange(t *testing.T) {
	for _, prio := range []int{-1, 100} {
		err := Prepare(false, prio)
		if err == nil {
			t.Fatalf("priority %d: expected error", prio)
		}
	}
}
