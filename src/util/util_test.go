package util

import "testing"

func TestRoundupRounddown(t *testing.T) {
	if Roundup(1, 4096) != 4096 {
		t.Fatal("roundup")
	}
	if Roundup(4096, 4096) != 4096 {
		t.Fatal("roundup exact")
	}
	if Rounddown(4097, 4096) != 4096 {
		t.Fatal("rounddown")
	}
	if Rounddown(0, 4096) != 0 {
		t.Fatal("rounddown zero")
	}
}

func TestMinMax(t *testing.T) {
	if Min(3, 5) != 3 || Max(3, 5) != 5 {
		t.Fatal("min/max")
	}
}

func TestReadnWriten(t *testing.T) {
	buf := make([]uint8, 16)
	Writen(buf, 8, 0, 0x0102030405060708)
	if Readn(buf, 8, 0) != 0x0102030405060708 {
		t.Fatal("8 byte round trip")
	}
	Writen(buf, 4, 8, 0xdeadbeef)
	if got := Readn(buf, 4, 8); uint32(got) != 0xdeadbeef {
		t.Fatalf("4 byte round trip: %x", got)
	}
	Writen(buf, 1, 12, 0xff)
	if Readn(buf, 1, 12) != 0xff {
		t.Fatal("1 byte round trip")
	}
}
