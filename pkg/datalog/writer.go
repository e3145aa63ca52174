// Package datalog persists sensor readings to daily-rotating CSV files.
// Each sensor owns one Writer; the Writer owns the file handle and a
// queue so disk I/O never runs on the polling goroutine.
package datalog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	stampLayout = "2006-01-02 15:04:05.000000"
	dateLayout  = "2006-01-02"

	queueDepth = 64
)

type record struct {
	t      time.Time
	values []string
}

// Writer appends timestamped records to a dated CSV file, rotating at
// the local-date boundary and pruning files past the retention window.
// A stable hardlink named after the base path always points at the
// current day's file.
type Writer struct {
	base   string // absolute path of the stable pointer
	backup int    // retention window in days

	queue chan record
	done  chan struct{}

	mu     chan struct{} // guards closed + queue send
	closed bool

	now func() time.Time

	// consumer-side state, touched only by run()
	fid  *os.File
	date time.Time
}

// New creates the data directory if needed and starts the writer loop.
// backup is the retention window in days; values below 1 are clamped.
func New(path string, backup int) (*Writer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	if backup < 1 {
		backup = 1
	}

	w := &Writer{
		base:   abs,
		backup: backup,
		queue:  make(chan record, queueDepth),
		done:   make(chan struct{}),
		mu:     make(chan struct{}, 1),
		now:    time.Now,
	}
	go w.run()
	return w, nil
}

// Write enqueues one record stamped with the current wall time. It
// never blocks on disk I/O; if the queue is full or the writer is
// closing the record is dropped with a warning.
func (w *Writer) Write(values ...string) {
	w.mu <- struct{}{}
	defer func() { <-w.mu }()

	if w.closed {
		return
	}
	select {
	case w.queue <- record{t: w.now(), values: values}:
	default:
		log.Printf("%s - log queue full, dropping record", w.base)
	}
}

// Close stops the writer, drains whatever is queued, closes the file
// and waits for the loop to exit. It is idempotent and safe to call
// from multiple goroutines; every call blocks until durability.
func (w *Writer) Close() {
	w.mu <- struct{}{}
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	<-w.mu
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)

	for rec := range w.queue {
		if err := w.writeRecord(rec); err != nil {
			log.Printf("%s - failed to write record: %v", w.base, err)
		}
	}

	if w.fid != nil {
		w.fid.Close()
		w.fid = nil
	}
}

func (w *Writer) writeRecord(rec record) error {
	if w.fid == nil || !sameDate(rec.t, w.date) {
		if err := w.rotate(rec.t); err != nil {
			return err
		}
	}

	line := rec.t.Format(stampLayout) + "," + strings.Join(rec.values, ",") + "\n"
	// The handle is unbuffered so a crash loses at most the in-flight
	// record.
	_, err := w.fid.WriteString(line)
	return err
}

func (w *Writer) rotate(t time.Time) error {
	if w.fid != nil {
		w.fid.Close()
		w.fid = nil
	}

	w.prune(t)

	dated := fmt.Sprintf("%s.%s", w.base, t.Format(dateLayout))
	fid, err := os.OpenFile(dated, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dated, err)
	}
	w.fid = fid
	w.date = t

	// Re-point the stable name at the new day's file.
	if err := os.Remove(w.base); err != nil && !os.IsNotExist(err) {
		log.Printf("%s - failed to remove stable pointer: %v", w.base, err)
	}
	if err := os.Link(dated, w.base); err != nil {
		log.Printf("%s - failed to link stable pointer: %v", w.base, err)
	}
	return nil
}

// prune removes dated files older than the retention window, measured
// in calendar days from t.
func (w *Writer) prune(t time.Time) {
	dir, name := filepath.Split(w.base)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("%s - failed to list data dir: %v", w.base, err)
		return
	}

	today := midnight(t)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), name+".") {
			continue
		}
		suffix := e.Name()[len(name)+1:]
		date, err := time.ParseInLocation(dateLayout, suffix, t.Location())
		if err != nil {
			continue
		}
		age := int(today.Sub(midnight(date)).Hours() / 24)
		if age > w.backup {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				log.Printf("%s - failed to prune %s: %v", w.base, e.Name(), err)
			}
		}
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
