package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/nexconsult/rera-harvester/internal/models"
)

// FailedLedger is the CSV of currently outstanding failures, one row per project ID.
type FailedLedger struct {
	path string

	mu      sync.Mutex
	entries map[int]models.FailedEntry
	order   []int
}

// OpenFailedLedger loads the entries already recorded at path.
func OpenFailedLedger(path string) (*FailedLedger, error) {
	l := &FailedLedger{path: path, entries: make(map[int]models.FailedEntry)}

	rows, err := readTable(path, models.FailedColumns)
	if err != nil {
		return nil, fmt.Errorf("open failed ledger: %w", err)
	}
	for _, row := range rows {
		id, err := strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		if _, dup := l.entries[id]; !dup {
			l.order = append(l.order, id)
		}
		l.entries[id] = models.FailedEntry{ProjectID: id, URL: row[1]}
	}
	return l, nil
}

// Path returns the ledger location
func (l *FailedLedger) Path() string { return l.path }

// Add appends an entry unless the project is already in the ledger.
// It reports whether a row was written.
func (l *FailedLedger) Add(entry models.FailedEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[entry.ProjectID]; ok {
		return false, nil
	}

	row := []string{strconv.Itoa(entry.ProjectID), entry.URL}
	if err := appendRows(l.path, models.FailedColumns, [][]string{row}); err != nil {
		return false, fmt.Errorf("append failed entry %d: %w", entry.ProjectID, err)
	}
	l.entries[entry.ProjectID] = entry
	l.order = append(l.order, entry.ProjectID)
	return true, nil
}

// Remove drops the entry for id by rewriting the whole file. Removing an absent
// id is a no-op. It reports whether an entry was removed.
func (l *FailedLedger) Remove(id int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; !ok {
		return false, nil
	}

	rows, err := readTable(l.path, models.FailedColumns)
	if err != nil {
		return false, fmt.Errorf("remove failed entry %d: %w", id, err)
	}

	key := strconv.Itoa(id)
	kept := rows[:0]
	for _, row := range rows {
		if row[0] != key {
			kept = append(kept, row)
		}
	}

	if err := rewrite(l.path, models.FailedColumns, kept); err != nil {
		return false, fmt.Errorf("remove failed entry %d: %w", id, err)
	}

	delete(l.entries, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Contains reports whether id is outstanding.
func (l *FailedLedger) Contains(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of outstanding failures.
func (l *FailedLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns the outstanding failures in insertion order.
func (l *FailedLedger) Entries() []models.FailedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.FailedEntry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id])
	}
	return out
}

// rewrite replaces path atomically with header plus rows.
func rewrite(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
