// Stream Sessions: chunked write/read for payloads larger than the
// scratch buffer, addressed by magic-tagged handles.
package tlvfs

import "encoding/binary"

type sessionKind uint8

const (
	kindWrite sessionKind = iota
	kindRead
)

const (
	writeMagicBase uint16 = 0x5753 // "WS"
	readMagicBase  uint16 = 0x5253 // "RS"
)

type sessionStreamState uint8

const (
	streamIdle sessionStreamState = iota
	streamActive
)

type session struct {
	inUse   bool
	kind    sessionKind
	state   sessionStreamState
	gen     uint16
	tag     uint16
	dataAddr uint32
	totalLen uint32
	processed uint32
	crc      uint16
	version  uint8

	// hasExisting/indexSlot only matter for write sessions: they let
	// write_end route through IndexTable.update the
	// same way a same-call Write would.
	hasExisting bool
	indexSlot   int
}

type sessionPool struct {
	sessions []session
}

func newSessionPool(capacity int) *sessionPool {
	return &sessionPool{sessions: make([]session, capacity)}
}

func magicBaseFor(kind sessionKind) uint16 {
	if kind == kindRead {
		return readMagicBase
	}
	return writeMagicBase
}

func composeHandle(kind sessionKind, gen uint16, slot int) uint32 {
	magic := magicBaseFor(kind) ^ gen
	return uint32(magic)<<16 | uint32(uint16(slot))
}

// acquire finds a free slot and marks it in use, returning its handle.
func (p *sessionPool) acquire(kind sessionKind) (*session, uint32, bool) {
	for i := range p.sessions {
		if !p.sessions[i].inUse {
			s := &p.sessions[i]
			s.inUse = true
			s.kind = kind
			s.state = streamActive
			handle := composeHandle(kind, s.gen, i)
			return s, handle, true
		}
	}
	return nil, 0, false
}

// release frees a slot and bumps its generation so any copy of the old
// handle becomes unrecognizable.
func (p *sessionPool) release(slot int) {
	p.sessions[slot].gen++
	p.sessions[slot] = session{gen: p.sessions[slot].gen}
}

// lookup validates a handle's magic, slot bounds, kind, and state before
// returning the live session.
func (p *sessionPool) lookup(handle uint32, wantKind sessionKind) (*session, int, error) {
	slot := int(uint16(handle))
	if slot < 0 || slot >= len(p.sessions) {
		return nil, 0, ErrInvalidHandle
	}
	s := &p.sessions[slot]
	if !s.inUse || s.kind != wantKind || s.state != streamActive {
		return nil, 0, ErrInvalidHandle
	}
	wantMagic := magicBaseFor(wantKind) ^ s.gen
	gotMagic := uint16(handle >> 16)
	if gotMagic != wantMagic {
		return nil, 0, ErrInvalidHandle
	}
	return s, slot, nil
}

// WriteBegin validates tag/totalLen against the schema, reserves space
// using the same placement decision as Write, writes the block header,
// and returns a handle for WriteChunk/WriteEnd/WriteAbort.
func (s *Store) WriteBegin(tag uint16, totalLen int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady("stream.write_begin"); err != nil {
		return 0, s.fail(err, tag, "stream.write_begin")
	}
	if tag == 0 || totalLen <= 0 {
		return 0, s.fail(newErr(InvalidParam, tag, "stream.write_begin", nil), tag, "stream.write_begin")
	}
	entry, ok := s.schema.lookup(tag)
	if !ok {
		return 0, s.fail(newErr(NotFound, tag, "stream.write_begin", nil), tag, "stream.write_begin")
	}
	if totalLen > entry.MaxLength {
		return 0, s.fail(newErr(InvalidParam, tag, "stream.write_begin", nil), tag, "stream.write_begin")
	}

	sess, handle, ok := s.streams.acquire(kindWrite)
	if !ok {
		return 0, s.fail(newErr(InvalidState, tag, "stream.write_begin", nil), tag, "stream.write_begin")
	}

	if err := s.snapshot(); err != nil {
		s.streams.release(int(uint16(handle)))
		return 0, s.fail(err, tag, "stream.write_begin")
	}

	addr, indexSlot, hasExisting, err := s.reservePlacement(tag, totalLen)
	if err != nil {
		s.rollback()
		s.streams.release(int(uint16(handle)))
		return 0, s.fail(err, tag, "stream.write_begin")
	}

	writeCount := uint32(1)
	if old, peekErr := s.peekBlockHeader(addr); peekErr == nil && old.Tag == tag {
		writeCount = old.WriteCount + 1
	}
	hdr := blockHeader{
		Tag:        tag,
		Length:     uint16(totalLen),
		Version:    entry.Version,
		Flags:      0,
		Timestamp:  s.clock.TimeSeconds(),
		WriteCount: writeCount,
	}
	hdrBuf := encodeBlockHeader(hdr)
	if err := s.port.Write(addr, hdrBuf[:], BlockHeaderSize); err != nil {
		s.rollback()
		s.streams.release(int(uint16(handle)))
		return 0, s.fail(transportErr("stream.write_begin", tag, err), tag, "stream.write_begin")
	}

	sess.tag = tag
	sess.dataAddr = addr
	sess.totalLen = uint32(totalLen)
	sess.processed = 0
	sess.crc = crc16Update(crc16Init(), hdrBuf[:])
	sess.version = entry.Version
	sess.hasExisting = hasExisting
	sess.indexSlot = indexSlot

	return handle, nil
}

// reservePlacement mirrors placeAndWrite's decision tree without
// writing payload bytes — only the addr is needed up front for a
// stream write.
func (s *Store) reservePlacement(tag uint16, totalLen int) (addr uint32, slot int, hasExisting bool, err error) {
	newSize := blockSize(totalLen)
	existing, existingSlot, found := s.index.find(tag)

	if found {
		oldHdr, peekErr := s.peekBlockHeader(existing.DataAddr)
		oldSize := blockSize(int(oldHdr.Length))
		if peekErr == nil && newSize <= oldSize {
			s.reduceUsed(oldSize)
			s.increaseUsed(newSize)
			return existing.DataAddr, existingSlot, true, nil
		}
	}

	a, ok := s.allocate(newSize)
	if !ok {
		return 0, -1, false, newErr(NoMemorySpace, tag, "stream", nil)
	}

	if found {
		oldHdr, _ := s.peekBlockHeader(existing.DataAddr)
		oldSize := blockSize(int(oldHdr.Length))
		s.reduceUsed(oldSize)
		s.addFragment(oldSize)
		s.increaseUsed(newSize)
		return a, existingSlot, true, nil
	}

	if s.index.findFreeSlot() < 0 {
		return 0, -1, false, newErr(NoIndexSpace, tag, "stream", nil)
	}
	s.increaseUsed(newSize)
	return a, -1, false, nil
}

// WriteChunk appends len(data) bytes at the session's current offset.
func (s *Store) WriteChunk(handle uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _, err := s.streams.lookup(handle, kindWrite)
	if err != nil {
		return s.fail(err, 0, "stream.write_chunk")
	}
	if sess.processed+uint32(len(data)) > sess.totalLen {
		return s.fail(newErr(InvalidParam, sess.tag, "stream.write_chunk", nil), sess.tag, "stream.write_chunk")
	}
	off := sess.dataAddr + BlockHeaderSize + sess.processed
	if len(data) > 0 {
		if err := s.port.Write(off, data, uint32(len(data))); err != nil {
			return s.fail(transportErr("stream.write_chunk", sess.tag, err), sess.tag, "stream.write_chunk")
		}
	}
	sess.crc = crc16Update(sess.crc, data)
	sess.processed += uint32(len(data))
	return nil
}

// WriteEnd verifies the session is complete, writes the trailing CRC,
// finalizes the index entry, and commits — the same visibility boundary
// as a same-call Write.
func (s *Store) WriteEnd(handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, slotIdx, err := s.streams.lookup(handle, kindWrite)
	if err != nil {
		return s.fail(err, 0, "stream.write_end")
	}
	if sess.processed != sess.totalLen {
		return s.fail(newErr(InvalidState, sess.tag, "stream.write_end", nil), sess.tag, "stream.write_end")
	}

	var crcBuf [2]byte
	binary.LittleEndian.PutUint16(crcBuf[:], crc16Final(sess.crc))
	if err := s.port.Write(sess.dataAddr+BlockHeaderSize+sess.totalLen, crcBuf[:], 2); err != nil {
		s.streams.release(slotIdx)
		return s.fail(transportErr("stream.write_end", sess.tag, err), sess.tag, "stream.write_end")
	}

	if sess.hasExisting {
		s.index.update(sess.indexSlot, sess.dataAddr, sess.version)
	} else {
		if _, added := s.index.add(sess.tag, sess.dataAddr, sess.version); !added {
			s.streams.release(slotIdx)
			return s.fail(newErr(NoIndexSpace, sess.tag, "stream.write_end", nil), sess.tag, "stream.write_end")
		}
		s.header.TagCount++
	}

	if err := s.saveIndexLocked(); err != nil {
		s.rollback()
		if saveErr := s.saveHeaderLocked(); saveErr != nil {
			s.logger.Warnw("header save failed reconciling index save failure", "error", saveErr)
		}
		s.streams.release(slotIdx)
		return s.fail(err, sess.tag, "stream.write_end")
	}

	s.commit()
	s.header.TotalWrites++
	s.header.LastUpdateTime = s.clock.TimeSeconds()
	saveErr := s.saveHeaderLocked()
	s.streams.release(slotIdx)
	if saveErr != nil {
		return s.fail(saveErr, sess.tag, "stream.write_end")
	}
	return nil
}

// WriteAbort rolls back the allocator snapshot and releases the handle.
// The rolled-back range is simply unused free space again — it must
// not also be counted as a fragment, so no addFragment call happens
// here.
func (s *Store) WriteAbort(handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, slotIdx, err := s.streams.lookup(handle, kindWrite)
	if err != nil {
		return s.fail(err, 0, "stream.write_abort")
	}
	tag := sess.tag
	s.rollback()
	saveErr := s.saveHeaderLocked()
	s.streams.release(slotIdx)
	if saveErr != nil {
		return s.fail(saveErr, tag, "stream.write_abort")
	}
	return nil
}

// ReadBegin locates tag's block and readies a chunked read session.
func (s *Store) ReadBegin(tag uint16) (uint32, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady("stream.read_begin"); err != nil {
		return 0, 0, s.fail(err, tag, "stream.read_begin")
	}
	entry, _, ok := s.index.find(tag)
	if !ok {
		return 0, 0, s.fail(newErr(NotFound, tag, "stream.read_begin", nil), tag, "stream.read_begin")
	}

	var hdrBuf [BlockHeaderSize]byte
	if err := s.port.Read(entry.DataAddr, hdrBuf[:], BlockHeaderSize); err != nil {
		return 0, 0, s.fail(transportErr("stream.read_begin", tag, err), tag, "stream.read_begin")
	}
	hdr := decodeBlockHeader(hdrBuf[:])
	if hdr.Tag != tag {
		return 0, 0, s.fail(newErr(Corrupted, tag, "stream.read_begin", nil), tag, "stream.read_begin")
	}

	sess, handle, ok := s.streams.acquire(kindRead)
	if !ok {
		return 0, 0, s.fail(newErr(InvalidState, tag, "stream.read_begin", nil), tag, "stream.read_begin")
	}
	sess.tag = tag
	sess.dataAddr = entry.DataAddr
	sess.totalLen = uint32(hdr.Length)
	sess.processed = 0
	sess.crc = crc16Update(crc16Init(), hdrBuf[:])

	return handle, int(hdr.Length), nil
}

// ReadChunk reads len(buf) bytes at the session's current offset into
// buf, returning the actual number of bytes read.
func (s *Store) ReadChunk(handle uint32, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _, err := s.streams.lookup(handle, kindRead)
	if err != nil {
		return 0, s.fail(err, 0, "stream.read_chunk")
	}
	if sess.processed+uint32(len(buf)) > sess.totalLen {
		return 0, s.fail(newErr(InvalidParam, sess.tag, "stream.read_chunk", nil), sess.tag, "stream.read_chunk")
	}
	off := sess.dataAddr + BlockHeaderSize + sess.processed
	if len(buf) > 0 {
		if err := s.port.Read(off, buf, uint32(len(buf))); err != nil {
			return 0, s.fail(transportErr("stream.read_chunk", sess.tag, err), sess.tag, "stream.read_chunk")
		}
	}
	sess.crc = crc16Update(sess.crc, buf)
	sess.processed += uint32(len(buf))
	return len(buf), nil
}

// ReadEnd verifies the trailing CRC and releases the handle.
func (s *Store) ReadEnd(handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, slotIdx, err := s.streams.lookup(handle, kindRead)
	if err != nil {
		return s.fail(err, 0, "stream.read_end")
	}
	tag := sess.tag

	var crcBuf [2]byte
	readErr := s.port.Read(sess.dataAddr+BlockHeaderSize+sess.totalLen, crcBuf[:], 2)
	trailing := binary.LittleEndian.Uint16(crcBuf[:])
	finalCRC := crc16Final(sess.crc)
	s.streams.release(slotIdx)

	if readErr != nil {
		return s.fail(transportErr("stream.read_end", tag, readErr), tag, "stream.read_end")
	}
	if trailing != finalCRC {
		return s.fail(newErr(CrcFailed, tag, "stream.read_end", nil), tag, "stream.read_end")
	}
	return nil
}

// ReadAbort releases a read session with no header/index side effects.
func (s *Store) ReadAbort(handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, slotIdx, err := s.streams.lookup(handle, kindRead)
	if err != nil {
		return s.fail(err, 0, "stream.read_abort")
	}
	s.streams.release(slotIdx)
	return nil
}
