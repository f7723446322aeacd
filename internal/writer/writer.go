// Package writer appends records to a CSV file, opening and closing the file
// for every record so it can be inspected or briefly locked mid-run.
package writer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/homecrawl/internal/record"
	"github.com/go-scripts/homecrawl/internal/retry"
)

// BackupLayout is the timestamp layout used in backup file names.
const BackupLayout = "20060102_150405"

// ErrUnsaved is returned when a record could not be written after every
// attempt.
var ErrUnsaved = errors.New("record not saved")

// CSV is the output file of one run.
type CSV struct {
	path     string
	columns  []string
	attempts int
	delay    time.Duration
	logger   *log.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	openFile func(name string, flag int, perm os.FileMode) (*os.File, error)

	mu   sync.Mutex
	open *os.File
}

// Option configures a CSV writer.
type Option func(*CSV)

// WithRetry sets how often a locked file is retried and the pause between
// attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(w *CSV) {
		w.attempts = attempts
		w.delay = delay
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *log.Logger) Option {
	return func(w *CSV) { w.logger = l }
}

// New returns a writer for path. Nothing is touched on disk until Init or
// Append.
func New(path string, columns []string, opts ...Option) *CSV {
	w := &CSV{
		path:     path,
		columns:  columns,
		attempts: 5,
		delay:    3 * time.Second,
		now:      time.Now,
		sleep:    retry.Sleep,
		openFile: os.OpenFile,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Path returns the output path.
func (w *CSV) Path() string {
	return w.path
}

// BackupName returns the name an existing output file is moved to.
func BackupName(path string, t time.Time) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_backup_%s%s", stem, t.Format(BackupLayout), ext)
}

// freeBackupName returns BackupName, or the first of its "_1", "_2", ...
// variants that does not exist yet.
func freeBackupName(path string, t time.Time) (string, error) {
	name := BackupName(path, t)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		_, err := os.Lstat(name)
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", name, err)
		}
		name = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

// Init prepares the file for a fresh run. An existing file is renamed to a
// timestamped backup, never overwritten; the new file holds only the header.
// It returns the backup path, or "" when there was nothing to back up.
func (w *CSV) Init() (string, error) {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
	}

	var backup string
	if _, err := os.Stat(w.path); err == nil {
		backup, err = freeBackupName(w.path, w.now())
		if err != nil {
			return "", err
		}
		if err := os.Rename(w.path, backup); err != nil {
			return "", fmt.Errorf("backing up %s: %w", w.path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", w.path, err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return backup, fmt.Errorf("creating %s: %w", w.path, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(w.columns); err != nil {
		f.Close()
		return backup, fmt.Errorf("writing header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return backup, fmt.Errorf("writing header: %w", err)
	}
	return backup, f.Close()
}

// Append writes one record. A locked or busy file is retried after a fixed
// delay; when every attempt fails the returned error wraps ErrUnsaved.
func (w *CSV) Append(ctx context.Context, rec record.Record) error {
	attempts := w.attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.appendOnce(rec)
		if err == nil {
			return nil
		}
		if !IsLocked(err) {
			return fmt.Errorf("%w: %v", ErrUnsaved, err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if w.logger != nil {
			w.logger.Warn("output file locked, retrying",
				"path", w.path, "attempt", attempt, "of", attempts, "wait", w.delay)
		}
		if err := w.sleep(ctx, w.delay); err != nil {
			return fmt.Errorf("%w: %v", ErrUnsaved, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUnsaved, attempts, lastErr)
}

func (w *CSV) appendOnce(rec record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, statErr := os.Stat(w.path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := w.openFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.open = f
	defer func() {
		if w.open != nil {
			w.open.Close()
			w.open = nil
		}
	}()

	cw := csv.NewWriter(f)
	if isNew {
		if err := cw.Write(w.columns); err != nil {
			return err
		}
	}
	if err := cw.Write(rec.Row(w.columns)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Close closes the file if a write is in progress. It is safe to call at any
// time, including from the shutdown path.
func (w *CSV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open == nil {
		return nil
	}
	err := w.open.Close()
	w.open = nil
	return err
}

// IsLocked reports whether err means the file is temporarily unavailable.
func IsLocked(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY) ||
		errors.Is(err, syscall.EAGAIN)
}
