package pagination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/homecrawl/internal/fetch"
	"github.com/go-scripts/homecrawl/internal/retry"
)

// fakeSession shows the trigger for the first `available` locates.
type fakeSession struct {
	available   int
	locateErrAt int
	clickErrAt  int
	snapErr     error

	locates int
	clicks  int
}

func (f *fakeSession) WaitFor(context.Context, string) (bool, error) { return true, nil }

func (f *fakeSession) Locate(context.Context, string) (bool, error) {
	f.locates++
	if f.locateErrAt > 0 && f.locates == f.locateErrAt {
		return false, errors.New("node detached")
	}
	return f.available < 0 || f.locates <= f.available, nil
}

func (f *fakeSession) Click(context.Context, string) error {
	f.clicks++
	if f.clickErrAt > 0 && f.clicks == f.clickErrAt {
		return errors.New("click intercepted")
	}
	return nil
}

func (f *fakeSession) Snapshot(context.Context) (*fetch.Page, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return &fetch.Page{URL: "https://example.com/find", HTML: "<html></html>"}, nil
}

func (f *fakeSession) Close() {}

func newExpander() *Expander {
	return &Expander{Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() }}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name        string
		session     *fakeSession
		maxClicks   int
		wantClicks  int
		wantStopped bool
	}{
		{name: "trigger absent from the start", session: &fakeSession{available: 0}, maxClicks: 20, wantClicks: 0},
		{name: "trigger disappears after three clicks", session: &fakeSession{available: 3}, maxClicks: 20, wantClicks: 3},
		{name: "trigger never disappears", session: &fakeSession{available: -1}, maxClicks: 20, wantClicks: 20},
		{name: "zero budget", session: &fakeSession{available: -1}, maxClicks: 0, wantClicks: 0},
		{name: "locate fails midway", session: &fakeSession{available: -1, locateErrAt: 3}, maxClicks: 20, wantClicks: 2, wantStopped: true},
		{name: "click fails midway", session: &fakeSession{available: -1, clickErrAt: 4}, maxClicks: 20, wantClicks: 3, wantStopped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newExpander().Expand(context.Background(), tt.session, "button.more", tt.maxClicks)
			require.NoError(t, err)
			require.NotNil(t, res.Page)
			assert.Equal(t, tt.wantClicks, res.Clicks)
			assert.LessOrEqual(t, res.Clicks, tt.maxClicks)
			assert.LessOrEqual(t, tt.session.clicks, tt.maxClicks)
			assert.Equal(t, tt.wantStopped, res.Stopped != nil)
		})
	}
}

func TestExpandSettlesAfterEachClick(t *testing.T) {
	var waits int
	clicks := 0
	e := &Expander{
		Settle:  fakeRange(),
		Sleep:   func(context.Context, time.Duration) error { waits++; return nil },
		OnClick: func(n int) { clicks = n },
	}

	res, err := e.Expand(context.Background(), &fakeSession{available: 2}, "button.more", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Clicks)
	assert.Equal(t, 2, waits)
	assert.Equal(t, 2, clicks)
}

func TestExpandSnapshotFailure(t *testing.T) {
	snapErr := errors.New("target closed")
	_, err := newExpander().Expand(context.Background(), &fakeSession{available: 1, snapErr: snapErr}, "button.more", 5)
	assert.ErrorIs(t, err, snapErr)
}

func TestExpandCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Expander{
		Sleep: func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		},
	}

	res, err := e.Expand(ctx, &fakeSession{available: -1}, "button.more", 20)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Clicks)
	assert.Nil(t, res.Page)
}

func fakeRange() retry.Range {
	return retry.Range{Min: 2 * time.Second, Max: 4 * time.Second}
}
