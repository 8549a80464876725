package tlvfs

import "testing"

func TestCRC16KnownVector(t *testing.T) {
	// "123456789" is the standard CRC-16/CCITT-FALSE check string; the
	// spec's check value for this polynomial/init combination is 0x29B1.
	got := crc16([]byte("123456789"))
	if got != 0x29B1 {
		t.Fatalf("crc16(\"123456789\") = 0x%04X, want 0x29B1", got)
	}
}

func TestCRC16EmptyIsInit(t *testing.T) {
	if got := crc16(nil); got != crc16Init() {
		t.Fatalf("crc16(nil) = 0x%04X, want init value 0x%04X", got, crc16Init())
	}
}

func TestCRC16StreamingMatchesWhole(t *testing.T) {
	whole := []byte("the quick brown fox jumps over the lazy dog")
	split := len(whole) / 2

	streamed := crc16Init()
	streamed = crc16Update(streamed, whole[:split])
	streamed = crc16Update(streamed, whole[split:])
	streamed = crc16Final(streamed)

	if want := crc16(whole); streamed != want {
		t.Fatalf("streamed crc16 = 0x%04X, want 0x%04X", streamed, want)
	}
}

func TestCRC16DetectsSingleBitFlip(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	want := crc16(buf)
	for i := range buf {
		mutated := append([]byte(nil), buf...)
		mutated[i] ^= 0x01
		if got := crc16(mutated); got == want {
			t.Fatalf("single-bit flip at byte %d went undetected", i)
		}
	}
}
