package querylock

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTryLock(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "locks"))

	first, err := l.TryLock(7)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	if _, err := l.TryLock(7); !errors.Is(err, ErrHeld) {
		t.Fatalf("second lock error = %v, want ErrHeld", err)
	}

	other, err := l.TryLock(8)
	if err != nil {
		t.Fatalf("other query lock: %v", err)
	}
	if err := other.Unlock(); err != nil {
		t.Fatalf("unlock other: %v", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	again, err := l.TryLock(7)
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	_ = again.Unlock()
}

func TestPath(t *testing.T) {
	l := New("/var/lib/podfinder/locks")
	if got, want := l.Path(12), "/var/lib/podfinder/locks/query-12.lock"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}
