package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/nexconsult/rera-harvester/internal/models"
)

// ErrHeaderMismatch is returned when an existing table was written with a different column order.
var ErrHeaderMismatch = errors.New("table header does not match expected columns")

// RecordTable is the append-only CSV of harvested records.
type RecordTable struct {
	path string

	mu   sync.Mutex
	seen map[int]struct{}
}

// OpenRecordTable indexes the project IDs already present at path. The file is created on first append.
func OpenRecordTable(path string) (*RecordTable, error) {
	t := &RecordTable{path: path, seen: make(map[int]struct{})}

	rows, err := readTable(path, models.RecordColumns)
	if err != nil {
		return nil, fmt.Errorf("open record table: %w", err)
	}
	for _, row := range rows {
		if id, err := strconv.Atoi(row[0]); err == nil {
			t.seen[id] = struct{}{}
		}
	}
	return t, nil
}

// Path returns the table location
func (t *RecordTable) Path() string { return t.path }

// Append writes one record row, writing the header first if the file is new.
func (t *RecordTable) Append(rec *models.ProjectRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendRows(t.path, models.RecordColumns, [][]string{rec.Row()}); err != nil {
		return fmt.Errorf("append record %d: %w", rec.ProjectID(), err)
	}
	t.seen[rec.ProjectID()] = struct{}{}
	return nil
}

// Contains reports whether a record for id has been written.
func (t *RecordTable) Contains(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return ok
}

// Len returns the number of distinct project IDs in the table.
func (t *RecordTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// Rows returns every data row currently on disk.
func (t *RecordTable) Rows() ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return readTable(t.path, models.RecordColumns)
}

// appendRows opens path in append mode and writes rows with a single Write call,
// preceded by header when the file is empty.
func appendRows(path string, header []string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readTable returns the data rows of path, checking its header. A missing or empty file has no rows.
func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	got, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(got, header) {
		return nil, fmt.Errorf("%s: %w", path, ErrHeaderMismatch)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
