// Thin I/O glue between the in-RAM Header/IndexTable mirrors and the
// Port. Kept separate from header.go/index.go so those two stay pure
// encode/decode, and from store.go so the lifecycle code isn't cluttered
// with buffer plumbing.
package tlvfs

// saveHeaderLocked recomputes the header's CRC and writes it to
// HEADER_OFF. No atomicity is assumed for a single header write —
// partial-write tolerance comes from the backup region.
func (s *Store) saveHeaderLocked() error {
	buf := s.header.encode()
	if err := s.port.Write(s.regions.headerOff, buf, HeaderSize); err != nil {
		return transportErr("header.save", 0, err)
	}
	return nil
}

// saveIndexLocked recomputes the index's CRC and writes the whole table.
// This is the engine's single visibility boundary.
func (s *Store) saveIndexLocked() error {
	buf := s.index.encode()
	if err := s.port.Write(s.regions.indexOff, buf, uint32(len(buf))); err != nil {
		return transportErr("index.save", 0, err)
	}
	return nil
}

// flushLocked persists both the index and the header.
func (s *Store) flushLocked() error {
	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	return s.saveHeaderLocked()
}
