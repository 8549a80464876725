// Allocator: a bump allocator over [DATA_OFF, BACKUP_OFF) plus the
// six-scalar snapshot/rollback/commit protocol every mutating operation
// wraps itself in.
package tlvfs

// allocSnapshot captures the six header bookkeeping scalars, plus the
// index entries a mutating operation is about to touch, so a failed
// operation can be rolled back to its pre-operation state in full —
// both the allocator's bookkeeping and the in-RAM index mirror.
type allocSnapshot struct {
	nextFreeAddr  uint32
	usedSpace     uint32
	freeSpace     uint32
	fragmentCount uint32
	fragmentSize  uint32
	tagCount      uint16
	indexEntries  []IndexEntry
	taken         bool
}

// snapshot saves the current six scalars plus a copy of the index
// entries. Exactly one snapshot exists per operation; nested write
// operations are disallowed, enforced here by refusing to overwrite a
// snapshot already taken.
func (s *Store) snapshot() error {
	if s.snap.taken {
		return newErr(InvalidState, 0, "alloc.snapshot", nil)
	}
	h := s.header
	entries := make([]IndexEntry, len(s.index.entries))
	copy(entries, s.index.entries)
	s.snap = allocSnapshot{
		nextFreeAddr:  h.NextFreeAddr,
		usedSpace:     h.UsedSpace,
		freeSpace:     h.FreeSpace,
		fragmentCount: h.FragmentCount,
		fragmentSize:  h.FragmentSize,
		tagCount:      h.TagCount,
		indexEntries:  entries,
		taken:         true,
	}
	return nil
}

// rollback restores the header scalars and the index entries to the
// last snapshot, so a caller that rolls back leaves both the allocator
// state and the in-RAM index mirror exactly as they were before the
// operation started — matching what is still on media, since nothing
// was saved in between.
func (s *Store) rollback() {
	if !s.snap.taken {
		return
	}
	h := s.header
	h.NextFreeAddr = s.snap.nextFreeAddr
	h.UsedSpace = s.snap.usedSpace
	h.FreeSpace = s.snap.freeSpace
	h.FragmentCount = s.snap.fragmentCount
	h.FragmentSize = s.snap.fragmentSize
	h.TagCount = s.snap.tagCount
	copy(s.index.entries, s.snap.indexEntries)
	s.index.rebuildAccelerator()
	s.snap = allocSnapshot{}
}

// commit discards the snapshot without restoring anything — the
// operation succeeded and its header mutations stand.
func (s *Store) commit() {
	s.snap = allocSnapshot{}
}

// allocate returns the current bump pointer and advances it by n bytes,
// or returns ok=false (the sentinel sense of "addr 0") if the data
// region cannot hold n more bytes.
func (s *Store) allocate(n uint32) (addr uint32, ok bool) {
	h := s.header
	backupOff := s.regions.dataEnd()
	if h.NextFreeAddr+n > backupOff || h.NextFreeAddr+n < h.NextFreeAddr {
		return 0, false
	}
	addr = h.NextFreeAddr
	h.NextFreeAddr += n
	return addr, true
}

// increaseUsed adds n bytes to used_space and removes them from
// free_space, keeping used_space + free_space == data_region_size.
func (s *Store) increaseUsed(n uint32) {
	s.header.UsedSpace += n
	if n > s.header.FreeSpace {
		s.header.FreeSpace = 0
		return
	}
	s.header.FreeSpace -= n
}

// reduceUsed subtracts n bytes from used_space, clamping at zero rather
// than underflowing, and returns the same bytes to free_space so the two
// scalars keep summing to data_region_size. A caller that is turning
// those bytes into a fragment rather than reclaimable space follows this
// with addFragment, which tracks dead bytes separately.
func (s *Store) reduceUsed(n uint32) {
	if n > s.header.UsedSpace {
		n = s.header.UsedSpace
	}
	s.header.UsedSpace -= n
	s.header.FreeSpace += n
}

// addFragment accounts a dead block of size n against fragment bookkeeping.
func (s *Store) addFragment(n uint32) {
	s.header.FragmentCount++
	s.header.FragmentSize += n
}
