// Index Table: the fixed-size array of {tag, flags, version, data_addr}
// entries at INDEX_OFF, plus its self-CRC.
package tlvfs

import "encoding/binary"

// IndexEntrySize is the packed, on-media size of one index slot.
const IndexEntrySize = 8

// Flag bits on an index entry. Only Valid and Dirty are consumed by the
// engine; the rest are advisory.
const (
	FlagValid     uint8 = 1 << 0
	FlagDirty     uint8 = 1 << 1
	FlagBackup    uint8 = 1 << 2
	FlagEncrypted uint8 = 1 << 3
	FlagCritical  uint8 = 1 << 4
)

// IndexEntry is one packed 8-byte slot.
type IndexEntry struct {
	Tag      uint16
	Flags    uint8
	Version  uint8
	DataAddr uint32
}

func (e IndexEntry) empty() bool { return e.Tag == 0 }
func (e IndexEntry) valid() bool { return e.Tag != 0 && e.Flags&FlagValid != 0 }

func encodeIndexEntry(e IndexEntry) [IndexEntrySize]byte {
	var buf [IndexEntrySize]byte
	binary.LittleEndian.PutUint16(buf[0:2], e.Tag)
	buf[2] = e.Flags
	buf[3] = e.Version
	binary.LittleEndian.PutUint32(buf[4:8], e.DataAddr)
	return buf
}

func decodeIndexEntry(buf []byte) IndexEntry {
	return IndexEntry{
		Tag:      binary.LittleEndian.Uint16(buf[0:2]),
		Flags:    buf[2],
		Version:  buf[3],
		DataAddr: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// IndexTable is the in-RAM mirror of the persisted index array plus its
// accelerator cache.
type IndexTable struct {
	entries     []IndexEntry // len == MaxTags
	accelerator map[uint16]int
}

func newIndexTable(maxTags int) *IndexTable {
	return &IndexTable{
		entries:     make([]IndexEntry, maxTags),
		accelerator: make(map[uint16]int, maxTags),
	}
}

func (ix *IndexTable) initEmpty() {
	for i := range ix.entries {
		ix.entries[i] = IndexEntry{}
	}
	ix.accelerator = make(map[uint16]int, len(ix.entries))
}

// encodedSize is the on-media size of the whole table including its
// trailing CRC.
func (ix *IndexTable) encodedSize() int {
	return len(ix.entries)*IndexEntrySize + 2
}

func (ix *IndexTable) encode() []byte {
	buf := make([]byte, ix.encodedSize())
	for i, e := range ix.entries {
		enc := encodeIndexEntry(e)
		copy(buf[i*IndexEntrySize:], enc[:])
	}
	tail := len(ix.entries) * IndexEntrySize
	crc := crc16(buf[:tail])
	binary.LittleEndian.PutUint16(buf[tail:], crc)
	return buf
}

// decodeIndexTable parses and CRC-verifies a raw index blob.
func decodeIndexTable(buf []byte, maxTags int) (*IndexTable, error) {
	want := maxTags*IndexEntrySize + 2
	if len(buf) != want {
		return nil, newErr(Corrupted, 0, "index.load", nil)
	}
	tail := maxTags * IndexEntrySize
	gotCRC := binary.LittleEndian.Uint16(buf[tail:])
	wantCRC := crc16(buf[:tail])
	if gotCRC != wantCRC {
		return nil, newErr(CrcFailed, 0, "index.load", nil)
	}
	ix := newIndexTable(maxTags)
	for i := range ix.entries {
		ix.entries[i] = decodeIndexEntry(buf[i*IndexEntrySize:])
	}
	ix.rebuildAccelerator()
	return ix, nil
}

func (ix *IndexTable) rebuildAccelerator() {
	ix.accelerator = make(map[uint16]int, len(ix.entries))
	for i, e := range ix.entries {
		if e.valid() {
			ix.accelerator[e.Tag] = i
		}
	}
}

// find returns the live entry for tag, or false if none exists. The
// accelerator is consulted first but always re-checked against the
// slot's actual contents before being trusted.
func (ix *IndexTable) find(tag uint16) (IndexEntry, int, bool) {
	if slot, ok := ix.accelerator[tag]; ok {
		if slot >= 0 && slot < len(ix.entries) {
			e := ix.entries[slot]
			if e.valid() && e.Tag == tag {
				return e, slot, true
			}
		}
		// Accelerator stale (e.g. index reordered under us) — fall
		// through to the authoritative linear scan.
	}
	for i, e := range ix.entries {
		if e.valid() && e.Tag == tag {
			ix.accelerator[tag] = i
			return e, i, true
		}
	}
	return IndexEntry{}, -1, false
}

// findFreeSlot returns the first empty slot index, or -1 if the table is full.
func (ix *IndexTable) findFreeSlot() int {
	for i, e := range ix.entries {
		if e.empty() {
			return i
		}
	}
	return -1
}

// add installs a brand-new live entry for tag at the first free slot.
func (ix *IndexTable) add(tag uint16, addr uint32, version uint8) (int, bool) {
	slot := ix.findFreeSlot()
	if slot < 0 {
		return -1, false
	}
	ix.entries[slot] = IndexEntry{Tag: tag, Flags: FlagValid, Version: version, DataAddr: addr}
	ix.accelerator[tag] = slot
	return slot, true
}

// update rewrites an existing slot's address/version in place.
func (ix *IndexTable) update(slot int, addr uint32, version uint8) {
	ix.entries[slot].DataAddr = addr
	ix.entries[slot].Version = version
	ix.entries[slot].Flags |= FlagValid
	ix.entries[slot].Flags &^= FlagDirty
}

// markDirty flags a slot's block as stale without removing the slot,
// used when a write relocates a tag and the old block becomes a
// fragment pending defragment.
func (ix *IndexTable) markDirty(slot int) {
	ix.entries[slot].Flags |= FlagDirty
}

// remove clears a slot entirely (tag becomes 0, the empty marker).
func (ix *IndexTable) remove(slot int) {
	tag := ix.entries[slot].Tag
	ix.entries[slot] = IndexEntry{}
	delete(ix.accelerator, tag)
}

// liveCount returns the number of valid, non-empty slots.
func (ix *IndexTable) liveCount() int {
	n := 0
	for _, e := range ix.entries {
		if e.valid() {
			n++
		}
	}
	return n
}
