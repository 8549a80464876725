package tlvfs

import "testing"

func TestIndexTableEncodeDecodeRoundTrip(t *testing.T) {
	ix := newIndexTable(8)
	ix.initEmpty()
	ix.add(0x1001, 100, 1)
	ix.add(0x1002, 200, 2)

	buf := ix.encode()
	if len(buf) != ix.encodedSize() {
		t.Fatalf("encoded size = %d, want %d", len(buf), ix.encodedSize())
	}

	got, err := decodeIndexTable(buf, 8)
	if err != nil {
		t.Fatalf("decodeIndexTable: %v", err)
	}
	for i, e := range ix.entries {
		if got.entries[i] != e {
			t.Fatalf("slot %d mismatch: got %+v, want %+v", i, got.entries[i], e)
		}
	}
}

func TestIndexTableDecodeCRCFailure(t *testing.T) {
	ix := newIndexTable(4)
	ix.initEmpty()
	ix.add(0x1001, 100, 1)
	buf := ix.encode()
	buf[0] ^= 0xFF

	_, err := decodeIndexTable(buf, 4)
	if CodeOf(err) != CrcFailed {
		t.Fatalf("CodeOf = %v, want CrcFailed", CodeOf(err))
	}
}

func TestIndexTableDecodeWrongSize(t *testing.T) {
	_, err := decodeIndexTable(make([]byte, 3), 4)
	if CodeOf(err) != Corrupted {
		t.Fatalf("CodeOf = %v, want Corrupted", CodeOf(err))
	}
}

func TestIndexTableAddFindRemove(t *testing.T) {
	ix := newIndexTable(2)
	ix.initEmpty()

	slot, ok := ix.add(0x1001, 50, 1)
	if !ok {
		t.Fatalf("add: expected success")
	}
	e, foundSlot, found := ix.find(0x1001)
	if !found || foundSlot != slot || e.DataAddr != 50 {
		t.Fatalf("find after add: got %+v, %d, %v", e, foundSlot, found)
	}

	if _, ok := ix.add(0x1002, 60, 1); !ok {
		t.Fatalf("second add: expected success")
	}
	if _, ok := ix.add(0x1003, 70, 1); ok {
		t.Fatalf("third add into a 2-slot table: expected failure")
	}

	ix.remove(slot)
	if _, _, found := ix.find(0x1001); found {
		t.Fatalf("find after remove: expected not found")
	}
}

func TestIndexTableUpdatePreservesSlotClearsDirty(t *testing.T) {
	ix := newIndexTable(4)
	ix.initEmpty()
	slot, _ := ix.add(0x1001, 10, 1)
	ix.markDirty(slot)
	if ix.entries[slot].Flags&FlagDirty == 0 {
		t.Fatalf("expected dirty flag set")
	}
	ix.update(slot, 20, 2)
	if ix.entries[slot].DataAddr != 20 || ix.entries[slot].Version != 2 {
		t.Fatalf("update did not rewrite addr/version: %+v", ix.entries[slot])
	}
	if ix.entries[slot].Flags&FlagDirty != 0 {
		t.Fatalf("update should clear the dirty flag")
	}
}

func TestIndexTableAcceleratorStaleFallsBackToScan(t *testing.T) {
	ix := newIndexTable(4)
	ix.initEmpty()
	slot, _ := ix.add(0x1001, 10, 1)

	// Simulate the accelerator pointing at a slot that has since been
	// reused for a different tag, without going through rebuild.
	ix.accelerator[0x1001] = (slot + 1) % len(ix.entries)
	ix.entries[(slot+1)%len(ix.entries)] = IndexEntry{Tag: 0x2002, Flags: FlagValid, DataAddr: 99}

	_, foundSlot, found := ix.find(0x1001)
	if !found || foundSlot != slot {
		t.Fatalf("expected linear-scan fallback to recover slot %d, got %d found=%v", slot, foundSlot, found)
	}
}

func TestIndexTableLiveCount(t *testing.T) {
	ix := newIndexTable(4)
	ix.initEmpty()
	ix.add(0x1001, 10, 1)
	ix.add(0x1002, 20, 1)
	if got := ix.liveCount(); got != 2 {
		t.Fatalf("liveCount = %d, want 2", got)
	}
}
