// Package leaderboard persists episode results as a CSV file for the
// command-line workflow. The dashboard stores results through the store
// package instead; this is the portable file format the CLI appends and
// prints.
package leaderboard

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Columns of the results file, in order.
var header = []string{"timestamp", "agent_name", "mean_reward", "std_reward", "notes"}

// Entry is one recorded episode.
type Entry struct {
	Timestamp  time.Time
	AgentName  string
	MeanReward decimal.Decimal
	StdReward  decimal.Decimal
	Notes      string
}

// Append adds an entry to the CSV at path, creating the file with a
// header row when it does not exist yet.
func Append(path string, e Entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("leaderboard: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("leaderboard: stat %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("leaderboard: write header: %w", err)
		}
	}
	row := []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.AgentName,
		e.MeanReward.String(),
		e.StdReward.String(),
		e.Notes,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("leaderboard: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("leaderboard: flush: %w", err)
	}
	return nil
}

// Read loads every entry in file order. A missing file reads as empty.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("leaderboard: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	var entries []Entry
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("leaderboard: read %s: %w", path, err)
		}
		if first {
			first = false
			if rec[0] == header[0] {
				continue
			}
		}
		e, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("leaderboard: %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SortByMeanReward orders entries best first. Equal rewards keep their
// recording order.
func SortByMeanReward(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].MeanReward.GreaterThan(entries[j].MeanReward)
	})
}

func parseRow(rec []string) (Entry, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return Entry{}, fmt.Errorf("bad timestamp %q: %w", rec[0], err)
	}
	mean, err := decimal.NewFromString(rec[2])
	if err != nil {
		return Entry{}, fmt.Errorf("bad mean_reward %q: %w", rec[2], err)
	}
	std, err := decimal.NewFromString(rec[3])
	if err != nil {
		return Entry{}, fmt.Errorf("bad std_reward %q: %w", rec[3], err)
	}
	return Entry{
		Timestamp:  ts,
		AgentName:  rec[1],
		MeanReward: mean,
		StdReward:  std,
		Notes:      rec[4],
	}, nil
}
