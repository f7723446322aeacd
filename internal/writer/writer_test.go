package writer

import (
	"context"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/homecrawl/internal/record"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleRecord(community string) record.Record {
	rec := record.New()
	rec.Set(record.Builder, "Toll Brothers")
	rec.Set(record.Community, community)
	rec.Set(record.Address, "12 Main St, Suite 4")
	rec.Set(record.Link, "https://homes.example.com/p/1")
	return rec
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// lockedOpener fails the first n opens with a permission error.
func lockedOpener(n int, calls *int) func(string, int, os.FileMode) (*os.File, error) {
	return func(name string, flag int, perm os.FileMode) (*os.File, error) {
		*calls++
		if *calls <= n {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
		}
		return os.OpenFile(name, flag, perm)
	}
}

func TestBackupName(t *testing.T) {
	assert.Equal(t, "out/tollbrothers_backup_20250314_092653.csv", BackupName("out/tollbrothers.csv", fixedNow))
	assert.Equal(t, "homes_backup_20250314_092653", BackupName("homes", fixedNow))
}

func TestInitFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "homes.csv")
	w := New(path, record.Columns)

	backup, err := w.Init()
	require.NoError(t, err)
	assert.Empty(t, backup)
	assert.Equal(t, [][]string{record.Columns}, readRows(t, path))
}

func TestInitBacksUpExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homes.csv")
	require.NoError(t, os.WriteFile(path, []byte("old,data\n"), 0o644))

	w := New(path, record.Columns)
	w.now = func() time.Time { return fixedNow }

	backup, err := w.Init()
	require.NoError(t, err)
	assert.Equal(t, BackupName(path, fixedNow), backup)

	old, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "old,data\n", string(old))
	assert.Equal(t, [][]string{record.Columns}, readRows(t, path))
}

func TestInitKeepsEarlierBackupFromSameSecond(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homes.csv")
	require.NoError(t, os.WriteFile(path, []byte("prior,run,data\n"), 0o644))

	w := New(path, record.Columns)
	w.now = func() time.Time { return fixedNow }
	first, err := w.Init()
	require.NoError(t, err)

	w.now = func() time.Time { return fixedNow.Add(300 * time.Millisecond) }
	second, err := w.Init()
	require.NoError(t, err)
	third, err := w.Init()
	require.NoError(t, err)

	assert.Equal(t, BackupName(path, fixedNow), first)
	assert.Equal(t, strings.TrimSuffix(first, ".csv")+"_1.csv", second)
	assert.Equal(t, strings.TrimSuffix(first, ".csv")+"_2.csv", third)

	old, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "prior,run,data\n", string(old))
	assert.Equal(t, [][]string{record.Columns}, readRows(t, second))
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homes.csv")
	w := New(path, record.Columns)
	_, err := w.Init()
	require.NoError(t, err)

	require.NoError(t, w.Append(context.Background(), sampleRecord("Sky Ranch")))
	require.NoError(t, w.Append(context.Background(), sampleRecord("Mesa Verde")))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, record.Columns, rows[0])
	assert.Len(t, rows[1], len(record.Columns))
	assert.Equal(t, "Sky Ranch", rows[1][3])
	assert.Equal(t, "12 Main St, Suite 4", rows[1][4])
	assert.Equal(t, "Mesa Verde", rows[2][3])
}

func TestAppendWritesHeaderForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homes.csv")
	w := New(path, record.Columns)

	require.NoError(t, w.Append(context.Background(), sampleRecord("Sky Ranch")))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, record.Columns, rows[0])
}

func TestAppendRetriesLockedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homes.csv")
	w := New(path, record.Columns, WithRetry(5, 3*time.Second))
	w.sleep = noSleep
	calls := 0
	w.openFile = lockedOpener(2, &calls)

	require.NoError(t, w.Append(context.Background(), sampleRecord("Sky Ranch")))
	assert.Equal(t, 3, calls)
	assert.Len(t, readRows(t, path), 2)
}

func TestAppendGivesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homes.csv")
	w := New(path, record.Columns, WithRetry(5, 3*time.Second))
	var waits []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	calls := 0
	w.openFile = lockedOpener(100, &calls)

	err := w.Append(context.Background(), sampleRecord("Sky Ranch"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsaved)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}, waits)
}

func TestAppendOtherErrorsNotRetried(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "homes.csv"), record.Columns)
	w.sleep = noSleep
	calls := 0
	w.openFile = func(string, int, os.FileMode) (*os.File, error) {
		calls++
		return nil, errors.New("disk full")
	}

	err := w.Append(context.Background(), sampleRecord("Sky Ranch"))
	assert.ErrorIs(t, err, ErrUnsaved)
	assert.Equal(t, 1, calls)
}

func TestAppendCancelledWhileWaiting(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "homes.csv"), record.Columns)
	w.sleep = noSleep
	calls := 0
	w.openFile = lockedOpener(100, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Append(ctx, sampleRecord("Sky Ranch"))
	assert.ErrorIs(t, err, ErrUnsaved)
	assert.Equal(t, 1, calls)
}

func TestCloseIdle(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "homes.csv"), record.Columns)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestIsLocked(t *testing.T) {
	assert.True(t, IsLocked(&fs.PathError{Op: "open", Err: fs.ErrPermission}))
	assert.False(t, IsLocked(errors.New("disk full")))
	assert.False(t, IsLocked(nil))
}
