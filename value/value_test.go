package value

import "testing"

func TestLiveValue(t *testing.T) {
	v := Live(7, []byte("hello"))
	if v.IsRemoved() {
		t.Fatal("Live value reported as removed")
	}
	if v.Timestamp() != 7 {
		t.Fatalf("Timestamp() = %d, want 7", v.Timestamp())
	}
	if string(v.Data()) != "hello" {
		t.Fatalf("Data() = %q, want %q", v.Data(), "hello")
	}
	if v.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", v.Size())
	}
}

func TestTombstone(t *testing.T) {
	v := Tombstone(3)
	if !v.IsRemoved() {
		t.Fatal("Tombstone reported as not removed")
	}
	if v.Timestamp() != 3 {
		t.Fatalf("Timestamp() = %d, want 3", v.Timestamp())
	}
	if v.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", v.Size())
	}
}

func TestDataPanicsOnTombstone(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Data() on a tombstone did not panic")
		}
	}()
	Tombstone(1).Data()
}

func TestZeroTimestampPanics(t *testing.T) {
	t.Run("Live", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("Live(0, ...) did not panic")
			}
		}()
		Live(0, []byte("x"))
	})
	t.Run("Tombstone", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("Tombstone(0) did not panic")
			}
		}()
		Tombstone(0)
	})
}
