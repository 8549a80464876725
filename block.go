// Data Block Codec: the on-media {header, payload, trailing CRC} unit
// written into the data region.
package tlvfs

import "encoding/binary"

// BlockHeaderSize is the fixed, on-media size of a data block's header.
const BlockHeaderSize = 14

// blockHeader is the packed 14-byte header prefixing every block.
type blockHeader struct {
	Tag        uint16
	Length     uint16
	Version    uint8
	Flags      uint8
	Timestamp  uint32
	WriteCount uint32
}

func encodeBlockHeader(h blockHeader) [BlockHeaderSize]byte {
	var buf [BlockHeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], h.Tag)
	binary.LittleEndian.PutUint16(buf[2:4], h.Length)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.LittleEndian.PutUint32(buf[6:10], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[10:14], h.WriteCount)
	return buf
}

func decodeBlockHeader(buf []byte) blockHeader {
	return blockHeader{
		Tag:        binary.LittleEndian.Uint16(buf[0:2]),
		Length:     binary.LittleEndian.Uint16(buf[2:4]),
		Version:    buf[4],
		Flags:      buf[5],
		Timestamp:  binary.LittleEndian.Uint32(buf[6:10]),
		WriteCount: binary.LittleEndian.Uint32(buf[10:14]),
	}
}

// blockSize returns the total on-media footprint of a block holding
// payloadLen bytes.
func blockSize(payloadLen int) uint32 {
	return uint32(BlockHeaderSize + payloadLen + 2)
}

// writeBlock serializes tag/payload/version to addr, carrying forward
// the previous write_count when addr already holds a block for the same
// tag.
func (s *Store) writeBlock(tag uint16, payload []byte, addr uint32, version uint8) error {
	writeCount := uint32(1)
	if old, err := s.peekBlockHeader(addr); err == nil && old.Tag == tag {
		writeCount = old.WriteCount + 1
	}

	hdr := blockHeader{
		Tag:        tag,
		Length:     uint16(len(payload)),
		Version:    version,
		Flags:      0,
		Timestamp:  s.clock.TimeSeconds(),
		WriteCount: writeCount,
	}
	hdrBuf := encodeBlockHeader(hdr)

	crc := crc16Init()
	crc = crc16Update(crc, hdrBuf[:])
	crc = crc16Update(crc, payload)
	crc = crc16Final(crc)

	if err := s.port.Write(addr, hdrBuf[:], BlockHeaderSize); err != nil {
		return transportErr("block.write", tag, err)
	}
	if len(payload) > 0 {
		if err := s.port.Write(addr+BlockHeaderSize, payload, uint32(len(payload))); err != nil {
			return transportErr("block.write", tag, err)
		}
	}
	var crcBuf [2]byte
	binary.LittleEndian.PutUint16(crcBuf[:], crc)
	if err := s.port.Write(addr+BlockHeaderSize+uint32(len(payload)), crcBuf[:], 2); err != nil {
		return transportErr("block.write", tag, err)
	}
	return nil
}

// peekBlockHeader reads only the 14-byte header at addr, used to learn
// the previous write_count without touching the payload.
func (s *Store) peekBlockHeader(addr uint32) (blockHeader, error) {
	var buf [BlockHeaderSize]byte
	if err := s.port.Read(addr, buf[:], BlockHeaderSize); err != nil {
		return blockHeader{}, err
	}
	return decodeBlockHeader(buf[:]), nil
}

// readBlock reads the block at addr into buf, which must be at least
// *length bytes on entry; *length is set to the actual payload length
// on return. An undersized buf yields NoBufferMemory with *length set
// to the required size, without consuming the read.
func (s *Store) readBlock(addr uint32, buf []byte, length *int) error {
	var hdrBuf [BlockHeaderSize]byte
	if err := s.port.Read(addr, hdrBuf[:], BlockHeaderSize); err != nil {
		return transportErr("block.read", 0, err)
	}
	hdr := decodeBlockHeader(hdrBuf[:])

	if int(hdr.Length) > *length {
		*length = int(hdr.Length)
		return newErr(NoBufferMemory, hdr.Tag, "block.read", nil)
	}

	payload := buf[:hdr.Length]
	if hdr.Length > 0 {
		if err := s.port.Read(addr+BlockHeaderSize, payload, uint32(hdr.Length)); err != nil {
			return transportErr("block.read", hdr.Tag, err)
		}
	}

	var crcBuf [2]byte
	if err := s.port.Read(addr+BlockHeaderSize+uint32(hdr.Length), crcBuf[:], 2); err != nil {
		return transportErr("block.read", hdr.Tag, err)
	}
	trailing := binary.LittleEndian.Uint16(crcBuf[:])

	crc := crc16Init()
	crc = crc16Update(crc, hdrBuf[:])
	crc = crc16Update(crc, payload)
	crc = crc16Final(crc)

	if crc != trailing {
		return newErr(CrcFailed, hdr.Tag, "block.read", nil)
	}

	*length = int(hdr.Length)
	return nil
}
