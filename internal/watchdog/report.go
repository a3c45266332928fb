package watchdog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"item_id", "state", "origin", "destination", "weight_kg",
	"last_seen_at", "reported_at", "reason",
}

// CSVSink appends lost-item reports to a CSV file, writing the header when
// the file is created. Writes are serialized and flushed per report so a
// crash never loses an acknowledged line.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink builds a sink writing to the given path.
func NewCSVSink(path string) (*CSVSink, error) {
	if path == "" {
		return nil, errors.New("report path is required")
	}
	return &CSVSink{path: path}, nil
}

// Write appends one report row.
func (s *CSVSink) Write(_ context.Context, report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening report file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("inspecting report file: %w", err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("writing report header: %w", err)
		}
	}
	row := []string{
		report.ItemID,
		string(report.State),
		report.Origin,
		report.Destination,
		strconv.FormatFloat(report.Weight, 'f', 1, 64),
		report.LastSeenAt.UTC().Format(time.RFC3339),
		report.ReportedAt.UTC().Format(time.RFC3339),
		report.Reason,
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("writing report row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return file.Sync()
}
