package bytesx

import (
	"errors"
	"testing"
)

func TestUintRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	PutUint16(buf, 0xBEEF)
	if got := Uint16(buf); got != 0xBEEF {
		t.Fatalf("Uint16 = %x, want BEEF", got)
	}
	PutUint32(buf, 0xDEADBEEF)
	if got := Uint32(buf); got != 0xDEADBEEF {
		t.Fatalf("Uint32 = %x, want DEADBEEF", got)
	}
	PutUint64(buf, 0x0102030405060708)
	if got := Uint64(buf); got != 0x0102030405060708 {
		t.Fatalf("Uint64 = %x, want 0102030405060708", got)
	}
}

func TestVarUint32RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 1 << 20, 0xFFFFFFFF}
	for _, v := range cases {
		enc := PutVarUint32(nil, v)
		if len(enc) > MaxVarint32Len {
			t.Fatalf("encoding of %d too long: %d bytes", v, len(enc))
		}
		got, n, err := ReadVarUint32(enc)
		if err != nil {
			t.Fatalf("ReadVarUint32(%d): %v", v, err)
		}
		if n != len(enc) || got != v {
			t.Fatalf("ReadVarUint32(%d) = %d,%d want %d,%d", v, got, n, v, len(enc))
		}
	}
}

func TestVarUint32BadEncoding(t *testing.T) {
	// 5 continuation bytes, all with the high bit set: too long.
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	if _, _, err := ReadVarUint32(buf); !errors.Is(err, ErrBadVarint) {
		t.Fatalf("expected ErrBadVarint, got %v", err)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	out := make([]byte, 16)
	if err := DecimalToBinary(out, "12345678901234567890"); err != nil {
		t.Fatalf("DecimalToBinary: %v", err)
	}
	if got := BinaryToDecimal(out); got != "12345678901234567890" {
		t.Fatalf("BinaryToDecimal = %s", got)
	}
}

func TestDecimalOverflow(t *testing.T) {
	out := make([]byte, 1)
	if err := DecimalToBinary(out, "999"); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestNegate(t *testing.T) {
	a := []byte{1, 0}
	Negate(a)
	if !IsNegative(a) {
		t.Fatal("expected negative after negating 1")
	}
	Negate(a)
	if a[0] != 1 || a[1] != 0 {
		t.Fatalf("double negate should restore original, got %v", a)
	}
}
