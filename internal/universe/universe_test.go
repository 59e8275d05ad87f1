package universe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"orbx/internal/util"
)

func TestFilterCheck(t *testing.T) {
	f := &Filter{PriceFloor: 5, AvgVolumeFloor: 1_000_000, ATRFloor: 0.5}

	tests := []struct {
		name string
		m    Metrics
		want Reason
	}{
		{"eligible", Metrics{LastClose: 50, AvgVolume: 5_000_000, ATR: 1.2, Valid: true}, ReasonEligible},
		{"penny stock", Metrics{LastClose: 2, AvgVolume: 5_000_000, ATR: 1.2, Valid: true}, ReasonPriceFloor},
		{"thin volume", Metrics{LastClose: 50, AvgVolume: 100_000, ATR: 1.2, Valid: true}, ReasonVolumeFloor},
		{"dead range", Metrics{LastClose: 50, AvgVolume: 5_000_000, ATR: 0.1, Valid: true}, ReasonATRFloor},
		{"missing stats fail closed", Metrics{LastClose: 50, AvgVolume: 5_000_000, ATR: 1.2, Valid: false}, ReasonInsufficientHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Check(tt.m); got != tt.want {
				t.Errorf("Check(%+v) = %q, want %q", tt.m, got, tt.want)
			}
		})
	}
}

func TestAllowlistForDate(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 6, 3, 0, 0, 0, 0, util.Eastern())

	content := "aapl\nMSFT\n\n tsla \n"
	if err := os.WriteFile(filepath.Join(dir, "2024-06-03.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewAllowlist(dir, true)
	set, err := a.ForDate(date)
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	for _, sym := range []string{"AAPL", "MSFT", "TSLA"} {
		if _, ok := set[sym]; !ok {
			t.Errorf("allowlist missing %s", sym)
		}
	}
	if len(set) != 3 {
		t.Errorf("allowlist has %d symbols, want 3", len(set))
	}
}

func TestAllowlistRequiredMissingFailsClosed(t *testing.T) {
	a := NewAllowlist(t.TempDir(), true)
	if !a.Required() {
		t.Fatal("Required() = false for a required allowlist")
	}

	_, err := a.ForDate(time.Date(2024, 6, 4, 0, 0, 0, 0, util.Eastern()))
	if !errors.Is(err, ErrRequiredInputMissing) {
		t.Errorf("ForDate with missing required file returned %v, want ErrRequiredInputMissing", err)
	}
}

func TestAllowlistOptionalMissingIsUnconstrained(t *testing.T) {
	a := NewAllowlist(t.TempDir(), false)

	set, err := a.ForDate(time.Date(2024, 6, 4, 0, 0, 0, 0, util.Eastern()))
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	if set != nil {
		t.Errorf("optional missing allowlist returned %v, want nil (no constraint)", set)
	}
}

func TestAllowlistListDates(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"2024-06-04", "2024-06-03"} {
		if err := os.WriteFile(filepath.Join(dir, d+".txt"), []byte("AAPL\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	a := NewAllowlist(dir, false)
	dates, err := a.ListDates()
	if err != nil {
		t.Fatalf("ListDates: %v", err)
	}
	want := []string{"2024-06-03", "2024-06-04"}
	if len(dates) != 2 || dates[0] != want[0] || dates[1] != want[1] {
		t.Errorf("ListDates = %v, want %v", dates, want)
	}
}
