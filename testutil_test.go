package tlvfs

import "errors"

// memPort is an in-memory Port backed by a plain byte slice, standing in
// for a real FRAM/EEPROM transport in tests.
type memPort struct {
	buf      []byte
	initErr  error
	readErr  error
	writeErr error
}

func newMemPort(size uint32) *memPort {
	return &memPort{buf: make([]byte, size)}
}

func (p *memPort) Init() error { return p.initErr }

func (p *memPort) Read(offset uint32, dst []byte, size uint32) error {
	if p.readErr != nil {
		return p.readErr
	}
	if offset+size > uint32(len(p.buf)) {
		return errors.New("memPort: read out of range")
	}
	copy(dst[:size], p.buf[offset:offset+size])
	return nil
}

func (p *memPort) Write(offset uint32, src []byte, size uint32) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	if offset+size > uint32(len(p.buf)) {
		return errors.New("memPort: write out of range")
	}
	copy(p.buf[offset:offset+size], src[:size])
	return nil
}

// corrupt flips every bit in the byte at offset, useful for provoking a
// CRC mismatch without caring about the original value.
func (p *memPort) corrupt(offset uint32) {
	p.buf[offset] ^= 0xFF
}

func (p *memPort) zero(offset, size uint32) {
	for i := uint32(0); i < size; i++ {
		p.buf[offset+i] = 0
	}
}

var _ Port = (*memPort)(nil)

// fakeClock is a manually-advanced Clock for deterministic timestamps.
type fakeClock struct {
	seconds uint32
	millis  uint32
}

func (c *fakeClock) TimeSeconds() uint32 { return c.seconds }
func (c *fakeClock) TimeMillis() uint32  { return c.millis }

func (c *fakeClock) advance(seconds uint32) {
	c.seconds += seconds
	c.millis += seconds * 1000
}

var _ Clock = (*fakeClock)(nil)

const (
	testDeviceSize = 64 * 1024
	testHeaderOff  = 0
	testIndexOff   = 256
	testMaxTags    = 32
	testIndexSize  = testMaxTags*IndexEntrySize + 2
	testDataOff    = testIndexOff + testIndexSize
	testDataSize   = 2 * 1024
	testBackupOff  = testDataOff + testDataSize
)

func testLayout() regionLayout {
	return regionLayout{
		deviceSize: testDeviceSize,
		headerOff:  testHeaderOff,
		indexOff:   testIndexOff,
		dataOff:    testDataOff,
		backupOff:  testBackupOff,
		maxTags:    testMaxTags,
		bufferSize: 256,
	}
}

const (
	tagConfig uint16 = 0x1001
	tagEvent  uint16 = 0x1002
	tagBlob   uint16 = 0x1003
)

func testSchema() Table {
	return Table{
		{Tag: tagConfig, MaxLength: 64, Version: 1},
		{Tag: tagEvent, MaxLength: 128, Version: 1},
		{Tag: tagBlob, MaxLength: 2048, Version: 1},
		{Tag: SchemaSentinelTag},
	}
}

// openFreshStore formats and opens a Store over a brand-new memPort,
// ready for immediate use.
func openFreshStore(t testingT, schema Table) (*Store, *memPort, *fakeClock) {
	t.Helper()
	port := newMemPort(testDeviceSize)
	clock := &fakeClock{}
	layout := testLayout()

	cfg := Config{
		DeviceSize: layout.deviceSize,
		HeaderOff:  layout.headerOff,
		IndexOff:   layout.indexOff,
		DataOff:    layout.dataOff,
		BackupOff:  layout.backupOff,
		MaxTags:    layout.maxTags,
		BufferSize: layout.bufferSize,
		Port:       port,
		Clock:      clock,
		Schema:     schema,
	}

	s, result, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if result != FirstBoot {
		t.Fatalf("Open: want FirstBoot, got %v", result)
	}
	if err := s.Format(0); err != nil {
		t.Fatalf("Format: %v", err)
	}
	s, result, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if result != InitOk {
		t.Fatalf("reopen: want InitOk, got %v", result)
	}
	return s, port, clock
}

// reopenStore re-opens an already-formatted memPort, simulating a reboot.
func reopenStore(t testingT, port *memPort, clock *fakeClock, schema Table) (*Store, InitResult, error) {
	t.Helper()
	layout := testLayout()
	cfg := Config{
		DeviceSize: layout.deviceSize,
		HeaderOff:  layout.headerOff,
		IndexOff:   layout.indexOff,
		DataOff:    layout.dataOff,
		BackupOff:  layout.backupOff,
		MaxTags:    layout.maxTags,
		BufferSize: layout.bufferSize,
		Port:       port,
		Clock:      clock,
		Schema:     schema,
	}
	return Open(cfg)
}

// testingT is the subset of *testing.T this file needs, so it can be
// shared between top-level tests and helpers without importing "testing"
// into non-_test.go files.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
