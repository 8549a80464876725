// Runtime Context / Store: the process-wide handle owning the in-RAM
// mirrors of the header and index, the schema, the scratch buffer, and
// the stream session pool.
package tlvfs

import "sync"

// InitResult is the outcome of Open/init().
type InitResult int

const (
	InitError InitResult = iota
	FirstBoot
	InitOk
	Recovered
)

// EngineState is what State() reports.
type EngineState int

const (
	StateClosed EngineState = iota
	StateReady
)

// Region and capacity limits referenced throughout.
const (
	MaxTagsLimit    = 256
	MinBufferSize   = 256
	MinDeviceSize   = 64 * 1024
	defaultErrRing  = 16
	defaultStreams  = 1
	defaultFragPct  = 30
)

// regionLayout holds the four partitioning offsets plus capacity knobs,
// validated once at Open.
type regionLayout struct {
	deviceSize uint32
	headerOff  uint32
	indexOff   uint32
	dataOff    uint32
	backupOff  uint32
	maxTags    int
	bufferSize int
}

func (r regionLayout) dataEnd() uint32  { return r.backupOff }
func (r regionLayout) backupSize() uint32 { return r.dataOff - r.headerOff }

func (r regionLayout) validate() error {
	if r.deviceSize < MinDeviceSize {
		return newErr(InvalidParam, 0, "config.validate", nil)
	}
	if !(r.headerOff < r.indexOff && r.indexOff < r.dataOff && r.dataOff < r.backupOff) {
		return newErr(InvalidParam, 0, "config.validate", nil)
	}
	if r.backupOff+r.backupSize() > r.deviceSize {
		return newErr(InvalidParam, 0, "config.validate", nil)
	}
	if r.maxTags <= 0 || r.maxTags > MaxTagsLimit {
		return newErr(InvalidParam, 0, "config.validate", nil)
	}
	if r.bufferSize < MinBufferSize {
		return newErr(InvalidParam, 0, "config.validate", nil)
	}
	return nil
}

// Config configures a Store at Open time (expressed as runtime
// configuration rather than compile-time options, since Go has no
// FRAM-side preprocessor).
type Config struct {
	DeviceSize uint32
	HeaderOff  uint32
	IndexOff   uint32
	DataOff    uint32
	BackupOff  uint32
	MaxTags    int
	BufferSize int
	Magic      uint32

	Port   Port
	Clock  Clock
	Schema Table
	Logger Logger

	EnableMigration          bool
	LazyMigrateOnRead        bool
	AutoMigrateOnBoot        bool
	AutoCleanFragment        bool
	FragmentThresholdPercent int

	MaxStreamHandles int
	ErrorHistorySize int
}

func (c Config) layout() regionLayout {
	return regionLayout{
		deviceSize: c.DeviceSize,
		headerOff:  c.HeaderOff,
		indexOff:   c.IndexOff,
		dataOff:    c.DataOff,
		backupOff:  c.BackupOff,
		maxTags:    c.MaxTags,
		bufferSize: c.BufferSize,
	}
}

// Store is the engine's runtime handle — one per NVM device, under a
// single-cooperating-caller model; a single mutex serializes its public
// operations.
type Store struct {
	mu sync.Mutex

	port   Port
	clock  Clock
	schema Table
	logger Logger

	regions regionLayout
	magic   uint32

	header *Header
	index  *IndexTable

	scratch []byte
	streams *sessionPool

	snap   allocSnapshot
	ledger *errorLedger

	autoDefrag        bool
	fragThresholdPct  int
	lazyMigrateOnRead bool
	autoMigrateOnBoot bool

	state EngineState
}

// Open validates config, constructs a Store, and runs init() against
// the Port. It never implicitly formats the device — a FirstBoot result
// means the caller should call Format then Open again, matching the
// end-to-end flow of format-then-reopen.
func Open(cfg Config) (*Store, InitResult, error) {
	layout := cfg.layout()
	if err := layout.validate(); err != nil {
		return nil, InitError, err
	}
	if cfg.Port == nil || cfg.Clock == nil {
		return nil, InitError, newErr(InvalidParam, 0, "store.open", nil)
	}

	magic := cfg.Magic
	if magic == 0 {
		magic = DefaultMagic
	}

	errHist := cfg.ErrorHistorySize
	if errHist <= 0 {
		errHist = defaultErrRing
	}
	streams := cfg.MaxStreamHandles
	if streams <= 0 {
		streams = defaultStreams
	}
	fragPct := cfg.FragmentThresholdPercent
	if fragPct <= 0 {
		fragPct = defaultFragPct
	}
	logger := cfg.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	s := &Store{
		port:              cfg.Port,
		clock:             cfg.Clock,
		schema:            cfg.Schema,
		logger:            logger,
		regions:           layout,
		magic:             magic,
		scratch:           make([]byte, layout.bufferSize),
		ledger:            newErrorLedger(errHist),
		autoDefrag:        cfg.AutoCleanFragment,
		fragThresholdPct:  fragPct,
		lazyMigrateOnRead: cfg.LazyMigrateOnRead,
		autoMigrateOnBoot: cfg.AutoMigrateOnBoot,
	}
	s.streams = newSessionPool(streams)

	if err := s.port.Init(); err != nil {
		return nil, InitError, transportErr("store.open", 0, err)
	}

	result, err := s.init()
	if err != nil {
		s.ledger.record(CodeOf(err), 0, "store.open")
		return s, InitError, err
	}
	s.state = StateReady
	return s, result, nil
}

// init loads the header and index, automatically falling back to the
// backup region when either fails its CRC check.
func (s *Store) init() (InitResult, error) {
	hdrBuf := make([]byte, HeaderSize)
	if err := s.port.Read(s.regions.headerOff, hdrBuf, HeaderSize); err != nil {
		return InitError, transportErr("store.init", 0, err)
	}

	h, hdrErr := verifyHeader(hdrBuf, s.magic)
	if hdrErr != nil {
		if CodeOf(hdrErr) == Corrupted && isZeroed(hdrBuf) {
			return FirstBoot, nil
		}
		// Corrupted-but-nonzero or bad CRC: attempt backup recovery.
		if restoreErr := s.restoreFromBackupLocked(); restoreErr != nil {
			return InitError, hdrErr
		}
		return s.init()
	}
	s.header = h

	ixBuf := make([]byte, s.regions.maxTags*IndexEntrySize+2)
	if err := s.port.Read(s.regions.indexOff, ixBuf, uint32(len(ixBuf))); err != nil {
		return InitError, transportErr("store.init", 0, err)
	}
	ix, ixErr := decodeIndexTable(ixBuf, s.regions.maxTags)
	if ixErr != nil {
		s.logger.Warnw("index corrupt at open, restoring from backup", "error", ixErr)
		if restoreErr := s.restoreFromBackupLocked(); restoreErr != nil {
			return InitError, ixErr
		}
		return Recovered, nil
	}
	s.index = ix

	if s.autoMigrateOnBoot {
		s.migrateAllLocked()
	}
	return InitOk, nil
}

func isZeroed(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Format re-initializes the header and index to a brand-new empty
// store, identified by magic (0 selects DefaultMagic).
func (s *Store) Format(magic uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if magic == 0 {
		magic = DefaultMagic
	}
	s.magic = magic

	h := &Header{}
	h.initFresh(magic, s.regions.dataOff, s.regions.backupOff-s.regions.dataOff)
	s.header = h

	ix := newIndexTable(s.regions.maxTags)
	ix.initEmpty()
	s.index = ix

	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	if err := s.saveHeaderLocked(); err != nil {
		return err
	}
	return s.backupAllLocked()
}

// Deinit releases resources. There is no separate dirty bit to flip on
// clean shutdown — crash safety comes entirely from the header/index
// CRCs and the backup region — so Deinit is just a state transition.
func (s *Store) Deinit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// State reports the engine's current lifecycle state.
func (s *Store) State() EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetVersion returns this build's format major.minor.
func GetVersion() (major, minor uint8) {
	return FormatMajor, FormatMinor
}

func (s *Store) requireReady(op string) error {
	if s.state != StateReady {
		return newErr(InvalidState, 0, op, nil)
	}
	return nil
}
