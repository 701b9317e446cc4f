// Package candidates persists finalized candidate records to an append-only
// CSV file.
package candidates

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// TimestampLayout is the sortable local date-time format used in records.
const TimestampLayout = "2006-01-02 15:04:05"

// Placeholder substitutes session fields that were never collected.
const Placeholder = "N/A"

// header columns, in the exact order rows are written.
var header = []string{
	"timestamp",
	"user_id",
	"name",
	"phone",
	"age",
	"country",
	"selected_vacancy",
	"experience",
	"contact_method",
}

// Record is one completed funnel traversal. Records are append-only: no
// updates, no deletes.
type Record struct {
	Timestamp       time.Time
	UserID          int64
	Name            string
	Phone           string
	Age             string
	Country         string
	SelectedVacancy string
	Experience      string
	ContactMethod   string
}

func (r Record) row() []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		fmt.Sprintf("%d", r.UserID),
		orPlaceholder(r.Name),
		orPlaceholder(r.Phone),
		orPlaceholder(r.Age),
		orPlaceholder(r.Country),
		orPlaceholder(r.SelectedVacancy),
		orPlaceholder(r.Experience),
		orPlaceholder(r.ContactMethod),
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

// CSVSink appends records to a CSV file. Writers are serialized by a mutex so
// interleaved appends can never corrupt a row. The header is written exactly
// once, only when the file is newly created or empty.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Append writes one record. The file is opened per call so external log
// rotation keeps working.
func (s *CSVSink) Append(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening candidates file %q: %w", s.path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat candidates file %q: %w", s.path, err)
	}

	writer := csv.NewWriter(file)
	if stat.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	if err := writer.Write(record.row()); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	writer.Flush()
	return writer.Error()
}
