// Delete: clears a tag's index slot and accounts its block as a
// fragment pending defragment.
package tlvfs

func (s *Store) Delete(tag uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady("delete"); err != nil {
		return s.fail(err, tag, "delete")
	}
	if tag == 0 {
		return s.fail(newErr(InvalidParam, tag, "delete", nil), tag, "delete")
	}

	entry, slot, ok := s.index.find(tag)
	if !ok {
		return s.fail(newErr(NotFound, tag, "delete", nil), tag, "delete")
	}

	hdr, err := s.peekBlockHeader(entry.DataAddr)
	if err != nil {
		return s.fail(transportErr("delete", tag, err), tag, "delete")
	}
	size := blockSize(int(hdr.Length))

	s.reduceUsed(size)
	s.addFragment(size)
	s.index.remove(slot)
	s.header.TagCount--

	if err := s.saveIndexLocked(); err != nil {
		return s.fail(err, tag, "delete")
	}
	if err := s.saveHeaderLocked(); err != nil {
		return s.fail(err, tag, "delete")
	}
	return nil
}
