// Query/maintenance surface: aggregate statistics, per-tag iteration,
// and whole-store CRC verification.
package tlvfs

import goccyjson "github.com/goccy/go-json"

// Statistics is a point-in-time snapshot of the header's running
// counters, returned by value so callers can't mutate engine state
// through it.
type Statistics struct {
	TagCount             uint16
	UsedSpace            uint32
	FreeSpace            uint32
	FragmentCount        uint32
	FragmentSize         uint32
	FragmentationPercent int
	TotalWrites          uint32
	NextFreeAddr         uint32
	DataRegionSize       uint32
}

// JSON renders stats for a log line or diagnostics endpoint.
func (st Statistics) JSON() (string, error) {
	buf, err := goccyjson.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Statistics snapshots the header's running counters.
func (s *Store) Statistics() (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("statistics"); err != nil {
		return Statistics{}, s.fail(err, 0, "statistics")
	}
	h := s.header
	return Statistics{
		TagCount:             h.TagCount,
		UsedSpace:            h.UsedSpace,
		FreeSpace:            h.FreeSpace,
		FragmentCount:        h.FragmentCount,
		FragmentSize:         h.FragmentSize,
		FragmentationPercent: s.fragmentationPercentLocked(),
		TotalWrites:          h.TotalWrites,
		NextFreeAddr:         h.NextFreeAddr,
		DataRegionSize:       h.DataRegionSize,
	}, nil
}

// Foreach visits every live tag in index order, calling cb with its
// tag, schema version, and current payload length. Foreach stops early
// if cb returns false.
func (s *Store) Foreach(cb func(tag uint16, version uint8, length int) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("foreach"); err != nil {
		return s.fail(err, 0, "foreach")
	}
	for _, e := range s.index.entries {
		if !e.valid() {
			continue
		}
		hdr, err := s.peekBlockHeader(e.DataAddr)
		if err != nil {
			return s.fail(transportErr("foreach", e.Tag, err), e.Tag, "foreach")
		}
		if !cb(e.Tag, e.Version, int(hdr.Length)) {
			break
		}
	}
	return nil
}

// VerifyAll reads and CRC-checks every live block, writing the number
// found corrupted into *corrupted. It never mutates the index — a
// corrupt block found here is left for the caller to Delete or for
// restore_from_backup to fix.
func (s *Store) VerifyAll(corrupted *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("verify_all"); err != nil {
		return s.fail(err, 0, "verify_all")
	}

	count := 0
	buf := make([]byte, s.regions.bufferSize)
	for _, e := range s.index.entries {
		if !e.valid() {
			continue
		}
		hdr, err := s.peekBlockHeader(e.DataAddr)
		if err != nil {
			count++
			s.ledger.record(CodeOf(transportErr("verify_all", e.Tag, err)), e.Tag, "verify_all")
			continue
		}
		if int(hdr.Length) > len(buf) {
			buf = make([]byte, hdr.Length)
		}
		n := len(buf)
		if err := s.readBlock(e.DataAddr, buf, &n); err != nil {
			count++
			s.ledger.record(CodeOf(err), e.Tag, "verify_all")
		}
	}
	if corrupted != nil {
		*corrupted = count
	}
	return nil
}
