// Backup/Restore: a raw mirror of the management area — [HEADER_OFF,
// DATA_OFF), i.e. header + index — copied to/from BACKUP_OFF in
// scratch-buffer-sized chunks.
package tlvfs

// backupAllLocked copies [HEADER_OFF, DATA_OFF) to BACKUP_OFF in
// scratch-sized chunks.
func (s *Store) backupAllLocked() error {
	size := s.regions.backupSize()
	return s.copyRegionLocked(s.regions.headerOff, s.regions.backupOff, size)
}

// restoreFromBackupLocked validates the backup copy's own header before
// trusting it, copies it back over the management area, then reloads
// the in-RAM header and index from what was just restored.
func (s *Store) restoreFromBackupLocked() error {
	hdrBuf := make([]byte, HeaderSize)
	if err := s.port.Read(s.regions.backupOff, hdrBuf, HeaderSize); err != nil {
		return transportErr("backup.restore", 0, err)
	}
	h, err := verifyHeader(hdrBuf, s.magic)
	if err != nil {
		return err
	}
	if h.DataRegionStart != s.regions.dataOff || h.DataRegionSize != s.regions.backupOff-s.regions.dataOff {
		return newErr(Corrupted, 0, "backup.restore", nil)
	}

	size := s.regions.backupSize()
	if err := s.copyRegionLocked(s.regions.backupOff, s.regions.headerOff, size); err != nil {
		return err
	}

	s.header = h

	ixBuf := make([]byte, s.regions.maxTags*IndexEntrySize+2)
	if err := s.port.Read(s.regions.indexOff, ixBuf, uint32(len(ixBuf))); err != nil {
		return transportErr("backup.restore", 0, err)
	}
	ix, ixErr := decodeIndexTable(ixBuf, s.regions.maxTags)
	if ixErr != nil {
		return ixErr
	}
	s.index = ix
	return nil
}

// copyRegionLocked streams n bytes from src to dst through the Store's
// scratch buffer, BUFFER_SIZE bytes at a time.
func (s *Store) copyRegionLocked(src, dst, n uint32) error {
	chunk := uint32(len(s.scratch))
	if chunk == 0 {
		chunk = n
	}
	var off uint32
	for off < n {
		want := chunk
		if off+want > n {
			want = n - off
		}
		buf := s.scratch[:want]
		if err := s.port.Read(src+off, buf, want); err != nil {
			return transportErr("backup.copy", 0, err)
		}
		if err := s.port.Write(dst+off, buf, want); err != nil {
			return transportErr("backup.copy", 0, err)
		}
		off += want
	}
	return nil
}

// BackupAll is the public entry point for an explicit, caller-requested
// backup refresh.
func (s *Store) BackupAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("backup_all"); err != nil {
		return s.fail(err, 0, "backup_all")
	}
	if err := s.backupAllLocked(); err != nil {
		return s.fail(err, 0, "backup_all")
	}
	return nil
}

// RestoreFromBackup is the public entry point for an explicit,
// caller-requested restore.
func (s *Store) RestoreFromBackup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("restore_from_backup"); err != nil {
		return s.fail(err, 0, "restore_from_backup")
	}
	if err := s.restoreFromBackupLocked(); err != nil {
		return s.fail(err, 0, "restore_from_backup")
	}
	return nil
}
