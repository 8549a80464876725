package tlvfs

import "testing"

func newTestStoreForBlock() (*Store, *memPort) {
	layout := testLayout()
	port := newMemPort(layout.deviceSize)
	return &Store{regions: layout, port: port, clock: &fakeClock{}}, port
}

func TestBlockHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := blockHeader{Tag: 0x1001, Length: 8, Version: 3, Flags: 0, Timestamp: 1234, WriteCount: 5}
	buf := encodeBlockHeader(h)
	if len(buf) != BlockHeaderSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), BlockHeaderSize)
	}
	got := decodeBlockHeader(buf[:])
	if got != h {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestBlockSize(t *testing.T) {
	if got := blockSize(0); got != BlockHeaderSize+2 {
		t.Fatalf("blockSize(0) = %d, want %d", got, BlockHeaderSize+2)
	}
	if got := blockSize(8); got != BlockHeaderSize+8+2 {
		t.Fatalf("blockSize(8) = %d, want %d", got, BlockHeaderSize+8+2)
	}
}

func TestWriteBlockReadBlockRoundTrip(t *testing.T) {
	s, _ := newTestStoreForBlock()
	payload := []byte("ABCDEFGH")

	if err := s.writeBlock(0x1001, payload, 512, 1); err != nil {
		t.Fatalf("writeBlock: %v", err)
	}

	buf := make([]byte, 64)
	n := len(buf)
	if err := s.readBlock(512, buf, &n); err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("readBlock length = %d, want %d", n, len(payload))
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("readBlock payload = %q, want %q", buf[:n], payload)
	}
}

func TestReadBlockUndersizedBuffer(t *testing.T) {
	s, _ := newTestStoreForBlock()
	s.writeBlock(0x1001, []byte("ABCDEFGH"), 512, 1)

	buf := make([]byte, 4)
	n := len(buf)
	err := s.readBlock(512, buf, &n)
	if CodeOf(err) != NoBufferMemory {
		t.Fatalf("CodeOf = %v, want NoBufferMemory", CodeOf(err))
	}
	if n != 8 {
		t.Fatalf("n after NoBufferMemory = %d, want required size 8", n)
	}
}

func TestReadBlockCRCFailureOnPayloadCorruption(t *testing.T) {
	s, port := newTestStoreForBlock()
	s.writeBlock(0x1001, []byte("ABCDEFGH"), 512, 1)
	port.corrupt(512 + BlockHeaderSize + 2) // one payload byte

	buf := make([]byte, 64)
	n := len(buf)
	err := s.readBlock(512, buf, &n)
	if CodeOf(err) != CrcFailed {
		t.Fatalf("CodeOf = %v, want CrcFailed", CodeOf(err))
	}
}

func TestWriteBlockCarriesForwardWriteCount(t *testing.T) {
	s, _ := newTestStoreForBlock()
	s.writeBlock(0x1001, []byte("A"), 512, 1)
	s.writeBlock(0x1001, []byte("B"), 512, 1)

	hdr, err := s.peekBlockHeader(512)
	if err != nil {
		t.Fatalf("peekBlockHeader: %v", err)
	}
	if hdr.WriteCount != 2 {
		t.Fatalf("WriteCount = %d, want 2", hdr.WriteCount)
	}
}
