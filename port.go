// External collaborators consumed, never implemented, by this package:
// the NVM transport and the monotonic clock. Both are synchronous and
// byte-granular.
package tlvfs

// Port is the byte-addressable NVM transport. Implementations are
// expected to be synchronous: Read/Write block until the bytes have
// actually landed on (or come from) the device.
type Port interface {
	// Init prepares the transport for use (power-up sequencing, bus
	// configuration, etc.). Called once, before any Read/Write.
	Init() error

	// Read copies size bytes starting at offset into dst. dst must be
	// at least size bytes long.
	Read(offset uint32, dst []byte, size uint32) error

	// Write copies size bytes from src to the device starting at offset.
	Write(offset uint32, src []byte, size uint32) error
}

// Clock is the monotonic wall/boot clock the header's timestamps and
// block headers are stamped from.
type Clock interface {
	TimeSeconds() uint32
	TimeMillis() uint32
}

// transportErr maps any non-nil Port error to the generic transport
// error code — errors are opaque; the engine maps any non-nil Port error
// to the generic transport error code.
func transportErr(op string, tag uint16, err error) *Error {
	if err == nil {
		return nil
	}
	return newErr(Generic, tag, op, err)
}
