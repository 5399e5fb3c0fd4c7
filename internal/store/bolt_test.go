package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetCredentials(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveCredentials("Home", "secret123"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if got.SSID != "Home" {
		t.Errorf("ssid = %q, want %q", got.SSID, "Home")
	}
	if got.Password != "secret123" {
		t.Errorf("password = %q, want %q", got.Password, "secret123")
	}
	if !got.Provisioned {
		t.Error("provisioned = false, want true")
	}
}

func TestGetCredentialsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCredentials()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClearCredentials(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveCredentials("Home", "secret123"); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearCredentials(); err != nil {
		t.Fatal(err)
	}

	_, err := s.GetCredentials()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err after clear = %v, want ErrNotFound", err)
	}
}

func TestClearCredentialsEmpty(t *testing.T) {
	s := newTestStore(t)

	// Clearing an empty store must not fail.
	if err := s.ClearCredentials(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveAndGetSettings(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSettings(&Settings{Mode: 1, IntervalSec: 300}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSettings()
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != 1 {
		t.Errorf("mode = %d, want 1", got.Mode)
	}
	if got.IntervalSec != 300 {
		t.Errorf("interval = %d, want 300", got.IntervalSec)
	}
}

func TestWipe(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveCredentials("Home", "secret123"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSettings(&Settings{Mode: 1, IntervalSec: 60}); err != nil {
		t.Fatal(err)
	}

	if err := s.Wipe(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetCredentials(); !errors.Is(err, ErrNotFound) {
		t.Errorf("credentials after wipe: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetSettings(); !errors.Is(err, ErrNotFound) {
		t.Errorf("settings after wipe: err = %v, want ErrNotFound", err)
	}

	// Store stays usable after a wipe.
	if err := s.SaveCredentials("Other", "pw"); err != nil {
		t.Fatal(err)
	}
}
