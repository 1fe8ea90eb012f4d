package audio

import (
	"reflect"
	"testing"
)

func TestRingReadLastBeforeFull(t *testing.T) {
	r := NewRing(8)
	r.Write([]int16{1, 2, 3})

	if got := r.ReadLast(8); !reflect.DeepEqual(got, []int16{1, 2, 3}) {
		t.Fatalf("ReadLast = %v", got)
	}
	if got := r.ReadLast(2); !reflect.DeepEqual(got, []int16{2, 3}) {
		t.Fatalf("ReadLast(2) = %v", got)
	}
}

func TestRingWraparoundKeepsNewest(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1, 2, 3, 4, 5, 6})

	if got := r.ReadLast(4); !reflect.DeepEqual(got, []int16{3, 4, 5, 6}) {
		t.Fatalf("ReadLast = %v", got)
	}
}

func TestRingReadLastSpansWrapBoundary(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1, 2, 3, 4})
	r.Write([]int16{5}) // overwrites slot 0, pos now 1

	if got := r.ReadLast(3); !reflect.DeepEqual(got, []int16{3, 4, 5}) {
		t.Fatalf("ReadLast = %v", got)
	}
}

func TestRingEmptyAndClear(t *testing.T) {
	r := NewRing(4)
	if got := r.ReadLast(4); len(got) != 0 {
		t.Fatalf("empty ring ReadLast = %v", got)
	}

	r.Write([]int16{1, 2, 3})
	r.Clear()
	if got := r.ReadLast(4); len(got) != 0 {
		t.Fatalf("cleared ring ReadLast = %v", got)
	}

	// Writes after Clear start fresh.
	r.Write([]int16{7})
	if got := r.ReadLast(4); !reflect.DeepEqual(got, []int16{7}) {
		t.Fatalf("ReadLast after Clear+Write = %v", got)
	}
}
