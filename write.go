// Write: the core KV engine's commit path.
package tlvfs

func (s *Store) Write(tag uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(tag, data)
}

func (s *Store) writeLocked(tag uint16, data []byte) error {
	if err := s.requireReady("write"); err != nil {
		return s.fail(err, tag, "write")
	}
	if tag == 0 || len(data) == 0 {
		return s.fail(newErr(InvalidParam, tag, "write", nil), tag, "write")
	}
	entry, ok := s.schema.lookup(tag)
	if !ok {
		return s.fail(newErr(NotFound, tag, "write", nil), tag, "write")
	}
	if len(data) > entry.MaxLength {
		return s.fail(newErr(InvalidParam, tag, "write", nil), tag, "write")
	}

	if err := s.snapshot(); err != nil {
		return s.fail(err, tag, "write")
	}

	addr, err := s.placeAndWrite(tag, data, entry.Version)
	if err != nil {
		s.rollback()
		if saveErr := s.saveHeaderLocked(); saveErr != nil {
			s.logger.Warnw("header save failed during write rollback", "error", saveErr)
		}
		return s.fail(err, tag, "write")
	}

	if err := s.saveIndexLocked(); err != nil {
		s.rollback()
		if saveErr := s.saveHeaderLocked(); saveErr != nil {
			s.logger.Warnw("header save failed reconciling index save failure", "error", saveErr)
		}
		return s.fail(err, tag, "write")
	}

	s.commit()
	s.header.TotalWrites++
	s.header.LastUpdateTime = s.clock.TimeSeconds()
	if err := s.saveHeaderLocked(); err != nil {
		return s.fail(err, tag, "write")
	}

	_ = addr

	if s.autoDefrag && s.fragmentationPercentLocked() >= s.fragThresholdPct {
		if err := s.defragmentLocked(); err != nil {
			s.logger.Warnw("auto defragment failed", "error", err)
		}
	}
	return nil
}

// placeAndWrite decides placement, writes the block, and installs the
// index entry.
func (s *Store) placeAndWrite(tag uint16, data []byte, version uint8) (uint32, error) {
	newSize := blockSize(len(data))

	existing, slot, hasExisting := s.index.find(tag)

	if hasExisting {
		oldHdr, err := s.peekBlockHeader(existing.DataAddr)
		oldSize := blockSize(int(oldHdr.Length))
		if err == nil && newSize <= oldSize {
			// In-place update: same or smaller footprint.
			if err := s.writeBlock(tag, data, existing.DataAddr, version); err != nil {
				return 0, err
			}
			s.reduceUsed(oldSize)
			s.increaseUsed(newSize)
			s.index.update(slot, existing.DataAddr, version)
			return existing.DataAddr, nil
		}
	}

	addr, ok := s.allocate(newSize)
	if !ok {
		return 0, newErr(NoMemorySpace, tag, "write", nil)
	}

	if err := s.writeBlock(tag, data, addr, version); err != nil {
		return 0, err
	}

	if hasExisting {
		oldHdr, _ := s.peekBlockHeader(existing.DataAddr)
		oldSize := blockSize(int(oldHdr.Length))
		s.reduceUsed(oldSize)
		s.addFragment(oldSize)
		s.index.markDirty(slot)
		s.index.update(slot, addr, version)
		s.increaseUsed(newSize)
		return addr, nil
	}

	if _, added := s.index.add(tag, addr, version); !added {
		return 0, newErr(NoIndexSpace, tag, "write", nil)
	}
	s.header.TagCount++
	s.increaseUsed(newSize)
	return addr, nil
}

// fail records the failure in the error ledger and returns it unchanged,
// so every Write/Read/Delete call site gets ledger bookkeeping for free.
func (s *Store) fail(err error, tag uint16, op string) error {
	if err != nil {
		s.ledger.record(CodeOf(err), tag, op)
	}
	return err
}
