package us

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgressTrackerEmptySetSurvivesReload(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkEmpty([]string{"QQQQ", "XJKW", "ZZTOP"}); err != nil {
		t.Fatal(err)
	}
	pt.Close()

	// A fresh tracker over the same directory must see the same set.
	pt2, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt2.Close()

	for _, sym := range []string{"QQQQ", "XJKW", "ZZTOP"} {
		if !pt2.IsTriedEmpty(sym) {
			t.Errorf("%q lost across reload", sym)
		}
	}
	if pt2.IsTriedEmpty("AAPL") {
		t.Error("AAPL was never marked empty")
	}
}

func TestProgressTrackerCompletedDates(t *testing.T) {
	pt, err := newProgressTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if pt.IsCompleted("2024-06-03") {
		t.Error("date reported completed before any marking")
	}
	if err := pt.MarkCompleted("2024-06-03"); err != nil {
		t.Fatal(err)
	}
	if !pt.IsCompleted("2024-06-03") {
		t.Error("marked date not reported completed")
	}
	if pt.IsCompleted("2024-06-04") {
		t.Error("unmarked date reported completed")
	}
}

func TestProgressTrackerResumesPartialFile(t *testing.T) {
	dir := t.TempDir()

	// An interrupted run leaves a partially written dotfile behind.
	seed := filepath.Join(dir, ".tried-empty")
	if err := os.WriteFile(seed, []byte("FAKE\nGONE\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if !pt.IsTriedEmpty("FAKE") || !pt.IsTriedEmpty("GONE") {
		t.Error("entries from the interrupted run were not loaded")
	}

	if err := pt.MarkEmpty([]string{"MORE"}); err != nil {
		t.Fatal(err)
	}
	if !pt.IsTriedEmpty("MORE") {
		t.Error("entry appended after resume was not tracked")
	}
}

func TestProgressTrackerReset(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if err := pt.MarkEmpty([]string{"QQQQ"}); err != nil {
		t.Fatal(err)
	}
	if err := pt.Reset(); err != nil {
		t.Fatal(err)
	}

	if pt.IsTriedEmpty("QQQQ") {
		t.Error("entry survived a reset")
	}
	data, err := os.ReadFile(filepath.Join(dir, ".tried-empty"))
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(data) > 0 {
		t.Error("dotfile still has entries after reset")
	}
}
