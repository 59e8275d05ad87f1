package us

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// The daily gatherer discovers the tradable universe by brute force: it asks
// the data feed about every 1-4 letter ticker and remembers which came back
// empty. Longer tickers (5+ letters) cannot be enumerated that way and are
// supplied via a CSV seed file.

// GenerateBruteSymbols enumerates every A-Z ticker of length 1 through 4,
// 475254 symbols in total.
func GenerateBruteSymbols() []string {
	const total = 26 + 26*26 + 26*26*26 + 26*26*26*26
	out := make([]string, 0, total)
	var buf [4]byte

	for a := byte('A'); a <= 'Z'; a++ {
		buf[0] = a
		out = append(out, string(buf[:1]))
		for b := byte('A'); b <= 'Z'; b++ {
			buf[1] = b
			out = append(out, string(buf[:2]))
			for c := byte('A'); c <= 'Z'; c++ {
				buf[2] = c
				out = append(out, string(buf[:3]))
				for d := byte('A'); d <= 'Z'; d++ {
					buf[3] = d
					out = append(out, string(buf[:4]))
				}
			}
		}
	}
	return out
}

// LoadCSVSymbols reads tickers from the first column of a CSV seed file,
// skipping the header row. Symbols are upper-cased; blank cells are dropped.
func LoadCSVSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	out := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		if sym := strings.ToUpper(strings.TrimSpace(row[0])); sym != "" {
			out = append(out, sym)
		}
	}
	return out, nil
}

// AllBruteSymbols merges the brute-force enumeration with the CSV seed,
// deduplicated and shuffled. Shuffling spreads the symbols that actually
// exist evenly across batches, so progress is steady instead of front-loaded.
func AllBruteSymbols(csvPath string) ([]string, error) {
	all := GenerateBruteSymbols()

	seen := make(map[string]struct{}, len(all))
	for _, s := range all {
		seen[s] = struct{}{}
	}

	fromCSV, err := LoadCSVSymbols(csvPath)
	if err != nil {
		return nil, err
	}
	for _, s := range fromCSV {
		if _, dup := seen[s]; dup {
			continue
		}
		all = append(all, s)
		seen[s] = struct{}{}
	}

	rand.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	return all, nil
}
