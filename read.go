// Read: the CRC-protected read path with lazy, on-demand migration.
package tlvfs

func (s *Store) Read(tag uint16, buf []byte, length *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady("read"); err != nil {
		return s.fail(err, tag, "read")
	}
	if tag == 0 || length == nil || *length <= 0 {
		return s.fail(newErr(InvalidParam, tag, "read", nil), tag, "read")
	}

	entry, _, ok := s.index.find(tag)
	if !ok {
		return s.fail(newErr(NotFound, tag, "read", nil), tag, "read")
	}

	if err := s.readBlock(entry.DataAddr, buf, length); err != nil {
		return s.fail(err, tag, "read")
	}

	schemaEntry, hasSchema := s.schema.lookup(tag)
	if s.lazyMigrateOnRead && hasSchema && entry.Version < schemaEntry.Version {
		if err := s.migrateOnRead(tag, schemaEntry, buf, length, entry.Version); err != nil {
			return s.fail(err, tag, "read")
		}
	}

	return nil
}

// Exists is a bounded lookup with no data transfer.
func (s *Store) Exists(tag uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || tag == 0 {
		return false
	}
	_, _, ok := s.index.find(tag)
	return ok
}

// Length reads only the block header to learn a tag's current length.
func (s *Store) Length(tag uint16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady("length"); err != nil {
		return 0, s.fail(err, tag, "length")
	}
	if tag == 0 {
		return 0, s.fail(newErr(InvalidParam, tag, "length", nil), tag, "length")
	}
	entry, _, ok := s.index.find(tag)
	if !ok {
		return 0, s.fail(newErr(NotFound, tag, "length", nil), tag, "length")
	}
	hdr, err := s.peekBlockHeader(entry.DataAddr)
	if err != nil {
		return 0, s.fail(transportErr("length", tag, err), tag, "length")
	}
	return int(hdr.Length), nil
}

// Flush persists the index and header.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("flush"); err != nil {
		return s.fail(err, 0, "flush")
	}
	if err := s.flushLocked(); err != nil {
		return s.fail(err, 0, "flush")
	}
	return nil
}
