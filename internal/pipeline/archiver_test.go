package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	before []time.Time
	n      int64
	err    error
}

func (f *fakeArchiver) ArchiveStatusHistory(_ context.Context, before time.Time) (int64, error) {
	f.before = append(f.before, before)
	return f.n, f.err
}

func newTestArchiver(blob *fakeArchiver, days int) *Archiver {
	a := NewArchiver(blob, days, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestArchiverRun(t *testing.T) {
	blob := &fakeArchiver{n: 7}
	a := newTestArchiver(blob, 30)

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.Equal(t, []time.Time{time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}, blob.before)

	blob.err = errors.New("s3 down")
	_, err = a.Run(context.Background())
	require.ErrorContains(t, err, "s3 down")
}

func TestScheduleNext(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 7, 30, 0, time.UTC) // Thursday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 1, 15, 10, 8, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 1, 15, 10, 15, 0, 0, time.UTC)},
		{"0 9-17 * * *", time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)},
		{"30 2 * * 0", time.Date(2026, 1, 18, 2, 30, 0, 0, time.UTC)},
		{"0 0 1,15 * *", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseCron(tt.expr)
			require.NoError(t, err)
			got, err := s.Next(at)
			require.NoError(t, err)
			require.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseCronRejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"5-1 * * * *",
		"*/0 * * * *",
		"x * * * *",
	} {
		_, err := ParseCron(expr)
		require.Error(t, err, expr)
	}
}

func TestScheduleDefaultsToUTC(t *testing.T) {
	s, err := ParseCron("0 3 * * *")
	require.NoError(t, err)
	cet := time.FixedZone("CET", 3600)
	got, err := s.Next(time.Date(2026, 1, 15, 3, 30, 0, 0, cet)) // 02:30 UTC
	require.NoError(t, err)
	require.True(t, time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC).Equal(got), "got %s", got)
}

func TestScheduleNeverMatches(t *testing.T) {
	s, err := ParseCron("0 0 31 2 *")
	require.NoError(t, err)
	_, err = s.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestRunCronStopsOnCancel(t *testing.T) {
	a := newTestArchiver(&fakeArchiver{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.RunCron(ctx, "0 3 1 * *")
	require.ErrorIs(t, err, context.Canceled)

	require.Error(t, a.RunCron(context.Background(), "bad"))
}
