package tlvfs

import (
	"strings"
	"testing"
)

func TestStatisticsSnapshotReflectsState(t *testing.T) {
	s, _, _ := openFreshStore(t, testSchema())
	s.Write(tagConfig, []byte("abcd"))
	s.Write(tagEvent, []byte("ef"))

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TagCount != 2 {
		t.Fatalf("TagCount = %d, want 2", stats.TagCount)
	}
	if stats.UsedSpace == 0 {
		t.Fatalf("UsedSpace = 0, want > 0")
	}
	if stats.TotalWrites != 2 {
		t.Fatalf("TotalWrites = %d, want 2", stats.TotalWrites)
	}
}

func TestStatisticsJSONRendersFields(t *testing.T) {
	s, _, _ := openFreshStore(t, testSchema())
	s.Write(tagConfig, []byte("abcd"))
	stats, _ := s.Statistics()

	out, err := stats.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(out, "\"TagCount\"") {
		t.Fatalf("JSON output missing TagCount field: %s", out)
	}
}

func TestForeachVisitsLiveTagsAndStopsEarly(t *testing.T) {
	s, _, _ := openFreshStore(t, testSchema())
	s.Write(tagConfig, []byte("abcd"))
	s.Write(tagEvent, []byte("ef"))
	s.Write(tagBlob, []byte("ghij"))

	visited := 0
	err := s.Foreach(func(tag uint16, version uint8, length int) bool {
		visited++
		return visited < 2
	})
	if err != nil {
		t.Fatalf("Foreach: %v", err)
	}
	if visited != 2 {
		t.Fatalf("visited = %d, want 2 (stopped early)", visited)
	}
}

func TestForeachReportsLengthAndVersion(t *testing.T) {
	s, _, _ := openFreshStore(t, testSchema())
	s.Write(tagConfig, []byte("abcd"))

	var gotTag uint16
	var gotLen int
	s.Foreach(func(tag uint16, version uint8, length int) bool {
		gotTag, gotLen = tag, length
		return true
	})
	if gotTag != tagConfig || gotLen != 4 {
		t.Fatalf("Foreach reported tag=0x%04X len=%d, want 0x%04X 4", gotTag, gotLen, tagConfig)
	}
}

func TestVerifyAllDetectsCorruptedBlocksWithoutMutatingIndex(t *testing.T) {
	s, port, _ := openFreshStore(t, testSchema())
	s.Write(tagConfig, []byte("abcd"))
	s.Write(tagEvent, []byte("efgh"))

	entry, _, _ := s.index.find(tagEvent)
	port.corrupt(entry.DataAddr + BlockHeaderSize + 1)

	var corrupted int
	if err := s.VerifyAll(&corrupted); err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if corrupted != 1 {
		t.Fatalf("corrupted = %d, want 1", corrupted)
	}
	if !s.Exists(tagEvent) {
		t.Fatalf("VerifyAll must not remove the corrupted entry from the index")
	}
}
