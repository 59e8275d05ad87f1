package universe

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"orbx/internal/util"
)

// ErrRequiredInputMissing marks the absence of an input configured as
// required. It fails the affected day rather than letting the run continue
// unfiltered, because silent continuation changes the strategy's intended
// selectivity.
var ErrRequiredInputMissing = errors.New("required input missing")

// Allowlist reads per-day eligibility files (allowlist/YYYY-MM-DD.txt, one
// symbol per line). When required, a missing file rejects the whole day;
// when optional, a missing file means no allowlist constraint applies.
type Allowlist struct {
	dir      string
	required bool
}

// NewAllowlist creates an allowlist source rooted at dir. A zero-value dir
// with required=false disables allowlist filtering entirely.
func NewAllowlist(dir string, required bool) *Allowlist {
	return &Allowlist{dir: dir, required: required}
}

// Required reports whether the allowlist is a mandatory input.
func (a *Allowlist) Required() bool {
	return a.required
}

// ForDate returns the set of allowed symbols for the trading day, or nil
// when no constraint applies. A missing file for a required allowlist
// returns ErrRequiredInputMissing.
func (a *Allowlist) ForDate(date time.Time) (map[string]struct{}, error) {
	if a.dir == "" {
		if a.required {
			return nil, fmt.Errorf("allowlist directory not configured: %w", ErrRequiredInputMissing)
		}
		return nil, nil
	}

	path := filepath.Join(a.dir, util.DateKey(date)+".txt")
	symbols, err := ReadSymbolFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if a.required {
				return nil, fmt.Errorf("allowlist for %s: %w", util.DateKey(date), ErrRequiredInputMissing)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("reading allowlist for %s: %w", util.DateKey(date), err)
	}

	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		set[sym] = struct{}{}
	}
	return set, nil
}

// ReadSymbolFile reads one uppercase symbol per line, skipping blanks.
func ReadSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		sym := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return symbols, nil
}

// ListDates returns the sorted YYYY-MM-DD dates that have allowlist files.
func (a *Allowlist) ListDates() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".txt") {
			dates = append(dates, strings.TrimSuffix(name, ".txt"))
		}
	}
	sort.Strings(dates)
	return dates, nil
}
