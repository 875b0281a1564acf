package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/coachpo/backclock/pkg/timeevent"
)

// CSVFeeder reads step timestamps from the first column of a CSV file with a header row.
type CSVFeeder struct {
	closer io.Closer
	reader *csv.Reader
	line   int
}

// NewCSVFeeder opens filePath as a step feeder.
func NewCSVFeeder(filePath string) (*CSVFeeder, error) {
	// #nosec G304 -- file path is operator provided via CLI flags.
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	feeder, err := newCSVFeeder(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	feeder.closer = file
	return feeder, nil
}

// NewCSVFeederFromReader builds a feeder over r. The caller owns r.
func NewCSVFeederFromReader(r io.Reader) (*CSVFeeder, error) {
	return newCSVFeeder(r)
}

func newCSVFeeder(r io.Reader) (*CSVFeeder, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	// Read the header row.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return &CSVFeeder{reader: reader, line: 1}, nil
}

// Next returns the timestamp of the next row.
func (f *CSVFeeder) Next() (timeevent.UnixNanos, error) {
	record, err := f.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("read csv record: %w", err)
	}
	f.line++

	raw := strings.TrimSpace(record[0])
	timestamp, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp on line %d: %w", f.line, err)
	}
	return timeevent.UnixNanos(timestamp), nil
}

// Close releases the underlying file, if the feeder opened one.
func (f *CSVFeeder) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
