// Lazy Migrator: on-read, on-demand version upgrade via the schema's
// migrate function.
package tlvfs

// runMigrate enforces the engine-side rules around a schema's migrate
// function and invokes it in place over buf[:oldLen]. It returns the
// new length on success. maxSize bounds what the migrator itself may
// write and must be the caller's actual buffer capacity, not the
// schema's MaxLength — the caller may be reading into a buffer smaller
// than the tag's maximum.
func runMigrate(entry Entry, buf []byte, oldLen int, oldVer uint8, maxSize int) (newLen int, err error) {
	newVer := entry.Version

	if newVer == oldVer {
		return oldLen, nil
	}
	if newVer < oldVer {
		return 0, newErr(Version, entry.Tag, "migrate", nil)
	}
	if entry.Migrate == nil {
		return 0, newErr(Version, entry.Tag, "migrate", nil)
	}

	n := oldLen
	if migErr := entry.Migrate(buf, oldLen, &n, maxSize, oldVer, newVer); migErr != nil {
		if n > maxSize {
			return n, newErr(NoBufferMemory, entry.Tag, "migrate", nil)
		}
		return 0, migErr
	}
	if n > entry.MaxLength {
		return 0, newErr(InvalidParam, entry.Tag, "migrate", nil)
	}
	return n, nil
}

// migrateOnRead applies the lazy migrator to a just-read payload,
// writing the upgraded value back through the normal write path so the
// index's persisted version is re-stamped by the commit write() already
// performs. On any non-buffer migration failure, buf is restored to its
// pre-migration contents (from backup) and the read still succeeds with
// the old value — reads never silently lose data.
func (s *Store) migrateOnRead(tag uint16, entry Entry, buf []byte, length *int, oldVer uint8) error {
	if oldVer >= entry.Version {
		return nil
	}

	backup := append([]byte(nil), buf[:*length]...)
	oldLen := *length

	newLen, err := runMigrate(entry, buf, oldLen, oldVer, len(buf))
	if err != nil {
		if CodeOf(err) == NoBufferMemory {
			*length = newLen
			return err
		}
		copy(buf, backup)
		*length = oldLen
		s.ledger.record(CodeOf(err), tag, "migrate")
		s.logger.Warnw("lazy migration failed, returning pre-migration value", "tag", tag, "error", err)
		return nil
	}

	if writeErr := s.writeLocked(tag, buf[:newLen]); writeErr != nil {
		copy(buf, backup)
		*length = oldLen
		s.ledger.record(CodeOf(writeErr), tag, "migrate")
		s.logger.Warnw("lazy migration write-back failed, returning pre-migration value", "tag", tag, "error", writeErr)
		return nil
	}

	*length = newLen
	return nil
}

// migrateAllLocked eagerly upgrades every tag whose persisted version
// lags the schema, used by AUTO_MIGRATE_ON_BOOT.
func (s *Store) migrateAllLocked() {
	for slot := range s.index.entries {
		e := s.index.entries[slot]
		if !e.valid() {
			continue
		}
		entry, ok := s.schema.lookup(e.Tag)
		if !ok || e.Version >= entry.Version {
			continue
		}
		buf := make([]byte, entry.MaxLength)
		n := len(buf)
		if err := s.readBlock(e.DataAddr, buf, &n); err != nil {
			s.ledger.record(CodeOf(err), e.Tag, "migrate_all")
			continue
		}
		if err := s.migrateOnRead(e.Tag, entry, buf, &n, e.Version); err != nil {
			s.ledger.record(CodeOf(err), e.Tag, "migrate_all")
		}
	}
}
