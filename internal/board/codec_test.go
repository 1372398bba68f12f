package board

import (
	"math/rand"
	"testing"
)

func TestPixelRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, PixelSize)
	for i := 0; i < 10000; i++ {
		p := Pixel{
			R:       uint8(rng.Intn(256)),
			G:       uint8(rng.Intn(256)),
			B:       uint8(rng.Intn(256)),
			OwnerID: uint32(rng.Intn(1 << 24)),
		}
		EncodePixel(buf, p)
		got := DecodePixel(buf)
		if got != p {
			t.Fatalf("round-trip mismatch: want %+v got %+v", p, got)
		}
	}
}

func TestCoordinateMapping(t *testing.T) {
	cases := []int64{-300, -129, -128, -1, 0, 1, 127, 128, 129, 1000000}
	for _, x := range cases {
		for _, y := range cases {
			rx, ry := RegionOf(x, y)
			lx, ly := LocalOf(x, y)
			if lx < 0 || lx >= Side || ly < 0 || ly >= Side {
				t.Fatalf("local coords out of range for (%d,%d): (%d,%d)", x, y, lx, ly)
			}
			if rx*Side+lx != x {
				t.Fatalf("rx*Side+lx != x for (%d,%d): got %d", x, y, rx*Side+lx)
			}
			if ry*Side+ly != y {
				t.Fatalf("ry*Side+ly != y for (%d,%d): got %d", x, y, ry*Side+ly)
			}
		}
	}
}

func TestOffsetOfBounds(t *testing.T) {
	if OffsetOf(0, 0) != 0 {
		t.Fatalf("expected offset 0 at origin")
	}
	want := int64(Side*Side-1) * PixelSize
	if got := OffsetOf(Side-1, Side-1); got != want {
		t.Fatalf("expected offset %d at last pixel, got %d", want, got)
	}
}

func TestHex6ToRGB(t *testing.T) {
	r, g, b, ok := Hex6ToRGB("FF5733")
	if !ok || r != 0xFF || g != 0x57 || b != 0x33 {
		t.Fatalf("unexpected parse: %d %d %d %v", r, g, b, ok)
	}
	if _, _, _, ok := Hex6ToRGB("ff573"); ok {
		t.Fatalf("expected failure for short string")
	}
	if _, _, _, ok := Hex6ToRGB("GGGGGG"); ok {
		t.Fatalf("expected failure for non-hex string")
	}
	if r, g, b, ok := Hex6ToRGB("00ff00"); !ok || r != 0 || g != 0xFF || b != 0 {
		t.Fatalf("lowercase hex should parse: %d %d %d %v", r, g, b, ok)
	}
}

func TestRGBToHex6RoundTrip(t *testing.T) {
	s := RGBToHex6(0xFF, 0x57, 0x33)
	if s != "FF5733" {
		t.Fatalf("expected FF5733, got %s", s)
	}
	r, g, b, ok := Hex6ToRGB(s)
	if !ok || r != 0xFF || g != 0x57 || b != 0x33 {
		t.Fatalf("round trip failed: %d %d %d %v", r, g, b, ok)
	}
}
