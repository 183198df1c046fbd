package capture

import "testing"

func TestDecodeWordScan(t *testing.T) {
	ones := [WindowWords]uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff}

	zeroAt42 := ones
	zeroAt42[1] &^= 1 << 13

	testCases := []struct {
		name   string
		window [WindowWords]uint32
		want   uint8
	}{
		{"all zero", [WindowWords]uint32{}, 0},
		{"all ones", ones, MaxSample},
		{"zero at bit 42", zeroAt42, 42},
		{"first byte MSB only", [WindowWords]uint32{0x00000080}, 1},
		{"first byte LSB set only", [WindowWords]uint32{0x00000001}, 0},
		{"low byte full", [WindowWords]uint32{0x000000ff}, 8},
		{"low two bytes full", [WindowWords]uint32{0x0000ffff}, 16},
		{"last bit zero", [WindowWords]uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xfeffffff}, 127},
	}

	for _, tc := range testCases {
		got := DecodeWordScan(tc.window)
		if got != tc.want {
			t.Errorf("%s: expected %d, got %d (window %08x)", tc.name, tc.want, got, tc.window)
		}
	}
}

func TestDecodeWordScanEveryValue(t *testing.T) {
	for v := 0; v <= MaxSample; v++ {
		if got := DecodeWordScan(encodeA(v)); int(got) != v {
			t.Errorf("value %d decoded as %d", v, got)
		}
	}
}

func TestDecodeWordScanIgnoresTrailingBits(t *testing.T) {
	w := encodeA(20)
	w[2] = 0xffffffff
	w[3] = 0x12345678
	if got := DecodeWordScan(w); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
}

func TestDecodeMaskedRotate(t *testing.T) {
	testCases := []struct {
		name  string
		words []uint32
		word  int
		mask  uint32
		want  uint8
	}{
		{"zero at mask", []uint32{0, 0, 0, 0, 0, 0}, 0, 1 << 31, 0},
		{"all ones", []uint32{^uint32(0), ^uint32(0), ^uint32(0), ^uint32(0), ^uint32(0)}, 0, 1 << 31, MaxSample},
		{"three ones", []uint32{0xe0000000, 0, 0, 0, 0, 0}, 0, 1 << 31, 3},
		{"mid-word start", []uint32{0x00ff0000, 0, 0, 0, 0}, 0, 1 << 23, 8},
		{"crosses word", []uint32{0x00000001, 0xc0000000, 0, 0, 0}, 0, 1, 3},
		{"wraps ring end", []uint32{0x80000000, 0, 0, 0x00000003}, 3, 1 << 1, 3},
		{"zero mask means bit 31", []uint32{0x80000000, 0, 0, 0}, 0, 0, 1},
		{"index wraps", []uint32{0xf0000000, 0, 0, 0}, 4, 1 << 31, 4},
	}

	for _, tc := range testCases {
		got := DecodeMaskedRotate(NewRing(tc.words), tc.word, tc.mask)
		if got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

// Rotating the ring and the start index together must not change the result.
func TestDecodeMaskedRotateRotationInvariant(t *testing.T) {
	const n = 12
	base := make([]uint32, n)
	ring := NewRing(base)
	encodeB(ring, 9, 1<<4, 77)

	want := DecodeMaskedRotate(ring, 9, 1<<4)
	if want != 77 {
		t.Fatalf("expected 77 before rotation, got %d", want)
	}

	for r := 1; r < n; r++ {
		rotated := make([]uint32, n)
		for i := range base {
			rotated[(i+r)%n] = base[i]
		}
		got := DecodeMaskedRotate(NewRing(rotated), 9+r, 1<<4)
		if got != want {
			t.Errorf("rotation %d: expected %d, got %d", r, want, got)
		}
	}
}

func TestLeadingBit(t *testing.T) {
	testCases := []struct {
		in, want uint32
	}{
		{0, 0},
		{1, 1},
		{0x00feffff, 0x00800000},
		{0x80000001, 0x80000000},
		{0x0000f000, 0x00008000},
	}
	for _, tc := range testCases {
		if got := leadingBit(tc.in); got != tc.want {
			t.Errorf("leadingBit(%08x): expected %08x, got %08x", tc.in, tc.want, got)
		}
	}
}
