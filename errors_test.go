package tlvfs

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesSentinelByCode(t *testing.T) {
	err := newErr(NotFound, 0x1001, "read", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("errors.Is(err, ErrNotFound) = false, want true")
	}
	if errors.Is(err, ErrCrcFailed) {
		t.Fatalf("errors.Is(err, ErrCrcFailed) = true, want false")
	}
}

func TestErrorUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("bus timeout")
	err := newErr(Generic, 0, "write", cause)
	if got := errors.Unwrap(err); got != cause {
		t.Fatalf("Unwrap = %v, want %v", got, cause)
	}
}

func TestCodeOfHandlesForeignAndNilErrors(t *testing.T) {
	if CodeOf(nil) != Ok {
		t.Fatalf("CodeOf(nil) = %v, want Ok", CodeOf(nil))
	}
	if CodeOf(errors.New("boom")) != Generic {
		t.Fatalf("CodeOf(foreign) = %v, want Generic", CodeOf(errors.New("boom")))
	}
}

func TestErrorStringDistinctPerCode(t *testing.T) {
	seen := map[string]bool{}
	codes := []Code{
		Ok, Generic, InvalidParam, NotFound, NoBufferMemory, NoMemorySpace,
		NoIndexSpace, CrcFailed, Corrupted, Version, InvalidHandle, InvalidState,
	}
	for _, c := range codes {
		s := ErrorString(c)
		if s == "" {
			t.Fatalf("ErrorString(%v) is empty", c)
		}
		if seen[s] {
			t.Fatalf("ErrorString(%v) duplicates an earlier code's string %q", c, s)
		}
		seen[s] = true
	}
}
