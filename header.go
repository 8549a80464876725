// System Header: the 256-byte record at HEADER_OFF describing region
// geometry, the allocator's bump pointer, and running statistics.
package tlvfs

import "encoding/binary"

// HeaderSize is the fixed, on-media size of the System Header.
const HeaderSize = 256

const headerPreCRCSize = HeaderSize - 2 // 254

// DefaultMagic is the system identifier used by init_fresh/format.
const DefaultMagic uint32 = 0x544C5646

// FormatVersion is this build's major.minor, packed high/low byte.
const (
	FormatMajor = 1
	FormatMinor = 0
)

func packFormatVersion(major, minor uint8) uint16 {
	return uint16(major)<<8 | uint16(minor)
}

func unpackFormatVersion(v uint16) (major, minor uint8) {
	return uint8(v >> 8), uint8(v)
}

// Header mirrors the 256-byte persisted System Header.
type Header struct {
	Magic           uint32
	FormatVersion   uint16
	TagCount        uint16
	DataRegionStart uint32
	DataRegionSize  uint32
	NextFreeAddr    uint32
	TotalWrites     uint32
	LastUpdateTime  uint32
	FreeSpace       uint32
	UsedSpace       uint32
	FragmentCount   uint32
	FragmentSize    uint32
}

// initFresh resets h to a brand-new, empty-store header over the given
// region geometry.
func (h *Header) initFresh(magic uint32, dataStart, dataSize uint32) {
	*h = Header{
		Magic:           magic,
		FormatVersion:   packFormatVersion(FormatMajor, FormatMinor),
		TagCount:        0,
		DataRegionStart: dataStart,
		DataRegionSize:  dataSize,
		NextFreeAddr:    dataStart,
		TotalWrites:     0,
		LastUpdateTime:  0,
		FreeSpace:       dataSize,
		UsedSpace:       0,
		FragmentCount:   0,
		FragmentSize:    0,
	}
}

// encode serialises h into a HeaderSize-byte buffer, recomputing the
// trailing CRC over everything that precedes it.
func (h *Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.FormatVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.TagCount)
	binary.LittleEndian.PutUint32(buf[8:12], h.DataRegionStart)
	binary.LittleEndian.PutUint32(buf[12:16], h.DataRegionSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.NextFreeAddr)
	binary.LittleEndian.PutUint32(buf[20:24], h.TotalWrites)
	binary.LittleEndian.PutUint32(buf[24:28], h.LastUpdateTime)
	binary.LittleEndian.PutUint32(buf[28:32], h.FreeSpace)
	binary.LittleEndian.PutUint32(buf[32:36], h.UsedSpace)
	binary.LittleEndian.PutUint32(buf[36:40], h.FragmentCount)
	binary.LittleEndian.PutUint32(buf[40:44], h.FragmentSize)
	// buf[44:headerPreCRCSize] stays zeroed reserved padding.
	crc := crc16(buf[:headerPreCRCSize])
	binary.LittleEndian.PutUint16(buf[headerPreCRCSize:], crc)
	return buf
}

// decodeHeader parses a HeaderSize-byte buffer without verifying it;
// callers that need the CRC/magic/version checks should call verify.
func decodeHeader(buf []byte) *Header {
	h := &Header{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		FormatVersion:   binary.LittleEndian.Uint16(buf[4:6]),
		TagCount:        binary.LittleEndian.Uint16(buf[6:8]),
		DataRegionStart: binary.LittleEndian.Uint32(buf[8:12]),
		DataRegionSize:  binary.LittleEndian.Uint32(buf[12:16]),
		NextFreeAddr:    binary.LittleEndian.Uint32(buf[16:20]),
		TotalWrites:     binary.LittleEndian.Uint32(buf[20:24]),
		LastUpdateTime:  binary.LittleEndian.Uint32(buf[24:28]),
		FreeSpace:       binary.LittleEndian.Uint32(buf[28:32]),
		UsedSpace:       binary.LittleEndian.Uint32(buf[32:36]),
		FragmentCount:   binary.LittleEndian.Uint32(buf[36:40]),
		FragmentSize:    binary.LittleEndian.Uint32(buf[40:44]),
	}
	return h
}

// verifyHeader checks magic, format major, and CRC, in that order:
// CORRUPTED on magic mismatch, VERSION on major mismatch, CRC_FAILED
// otherwise on CRC mismatch.
func verifyHeader(buf []byte, expectMagic uint32) (*Header, error) {
	if len(buf) != HeaderSize {
		return nil, newErr(Corrupted, 0, "header.verify", nil)
	}
	h := decodeHeader(buf)
	if h.Magic != expectMagic {
		return nil, newErr(Corrupted, 0, "header.verify", nil)
	}
	major, minor := unpackFormatVersion(h.FormatVersion)
	if major != FormatMajor {
		return nil, newErr(Version, 0, "header.verify", nil)
	}
	if minor > FormatMinor {
		return nil, newErr(Version, 0, "header.verify", nil)
	}
	want := binary.LittleEndian.Uint16(buf[headerPreCRCSize:])
	got := crc16(buf[:headerPreCRCSize])
	if want != got {
		return nil, newErr(CrcFailed, 0, "header.verify", nil)
	}
	return h, nil
}
