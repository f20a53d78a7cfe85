package bitutil

import "testing"

func TestPopCount(t *testing.T) {
	cases := []struct {
		in   uint32
		want int
	}{
		{0, 0},
		{1, 1},
		{0xFFFFFFFF, 32},
		{0x80000001, 2},
		{0xAAAAAAAA, 16},
		{0x0000FFFF, 16},
	}
	for _, c := range cases {
		if got := PopCount(c.in); got != c.want {
			t.Errorf("PopCount(%#x) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestHamming(t *testing.T) {
	if got := Hamming(0, 0); got != 0 {
		t.Errorf("Hamming(0,0) = %d, want 0", got)
	}
	if got := Hamming(0, 0xFFFFFFFF); got != 32 {
		t.Errorf("Hamming(0,max) = %d, want 32", got)
	}
	if got := Hamming(0b1010, 0b0101); got != 4 {
		t.Errorf("Hamming(1010,0101) = %d, want 4", got)
	}
	// Single-bit flip
	if got := Hamming(0xDEADBEEF, 0xDEADBEEF^(1<<7)); got != 1 {
		t.Errorf("single-bit flip Hamming = %d, want 1", got)
	}
}

func TestMatchingBits(t *testing.T) {
	if got := MatchingBits(0xCAFEBABE, 0xCAFEBABE); got != 32 {
		t.Errorf("MatchingBits(x,x) = %d, want 32", got)
	}
	if got := MatchingBits(0, 0xFFFFFFFF); got != 0 {
		t.Errorf("MatchingBits(0,max) = %d, want 0", got)
	}
	for x := uint32(0); x < 64; x++ {
		if Hamming(x, ^x)+MatchingBits(x, ^x) != WordBits {
			t.Fatalf("Hamming + MatchingBits != %d for %#x", WordBits, x)
		}
	}
}

func TestHammingSlice(t *testing.T) {
	a := []uint32{0, 0xFFFFFFFF, 0xF0F0F0F0}
	b := []uint32{0, 0xFFFFFFFF, 0x0F0F0F0F}
	if got := HammingSlice(a, b); got != 32 {
		t.Errorf("HammingSlice = %d, want 32", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on mismatched lengths")
		}
	}()
	HammingSlice(a, b[:2])
}
