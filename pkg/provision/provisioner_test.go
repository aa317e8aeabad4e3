// pkg/provision/provisioner_test.go
package provision

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lakelog/pkg/model"
	"lakelog/pkg/store"
)

// fakeStore is an in-memory TableStore with programmable failures
type fakeStore struct {
	tables map[string]*fakeTable

	probeErr  map[string]error
	maxKeyErr error
	createErr error
	insertErr error
}

type fakeTable struct {
	schema model.Schema
	rows   [][]any
	keys   map[string]bool
	keyIdx int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:   make(map[string]*fakeTable),
		probeErr: make(map[string]error),
	}
}

func (f *fakeStore) Probe(_ context.Context, loc store.Location) (store.ProbeResult, error) {
	if err := f.probeErr[loc.Qualified()]; err != nil {
		return store.ProbeResult{}, err
	}
	t, ok := f.tables[loc.Qualified()]
	if !ok {
		return store.ProbeResult{Exists: false}, nil
	}
	cols := make([]string, len(t.schema.Columns))
	for i, c := range t.schema.Columns {
		cols[i] = c.Name
	}
	return store.ProbeResult{Exists: true, Columns: cols, RowCount: int64(len(t.rows))}, nil
}

func (f *fakeStore) MaxKey(_ context.Context, loc store.Location, _ string) (string, error) {
	if f.maxKeyErr != nil {
		return "", f.maxKeyErr
	}
	t, ok := f.tables[loc.Qualified()]
	if !ok || len(t.rows) == 0 {
		return "", store.ErrNotFound
	}
	var max string
	for _, row := range t.rows {
		key := fmt.Sprint(row[t.keyIdx])
		if key > max {
			max = key
		}
	}
	return max, nil
}

func (f *fakeStore) CreateTable(_ context.Context, loc store.Location, schema model.Schema, mode store.WriteMode) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.tables[loc.Qualified()]; exists && mode == store.CreateIfAbsent {
		return nil
	}
	keyIdx := 0
	for i, c := range schema.Columns {
		if c.Name == schema.Key {
			keyIdx = i
		}
	}
	f.tables[loc.Qualified()] = &fakeTable{
		schema: schema,
		keys:   make(map[string]bool),
		keyIdx: keyIdx,
	}
	return nil
}

func (f *fakeStore) Append(_ context.Context, loc store.Location, _ model.Schema, rows [][]any) (int64, error) {
	t := f.tables[loc.Qualified()]
	t.rows = append(t.rows, rows...)
	return int64(len(rows)), nil
}

func (f *fakeStore) InsertMissing(_ context.Context, loc store.Location, _ model.Schema, rows [][]any) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	t, ok := f.tables[loc.Qualified()]
	if !ok {
		return 0, store.ErrNotFound
	}
	var written int64
	for _, row := range rows {
		key := fmt.Sprint(row[t.keyIdx])
		if t.keys[key] {
			continue
		}
		t.keys[key] = true
		t.rows = append(t.rows, row)
		written++
	}
	return written, nil
}

func (f *fakeStore) DeleteWhere(context.Context, store.Location, string, ...any) (int64, error) {
	return 0, nil
}

func (f *fakeStore) CountWhere(context.Context, store.Location, string, ...any) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Compact(context.Context, store.Location) error { return nil }

func (f *fakeStore) Select(context.Context, any, string, ...any) error { return nil }

func (f *fakeStore) Get(context.Context, any, string, ...any) error { return nil }

var fixedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func newTestProvisioner(t *testing.T, fs *fakeStore, force bool) *Provisioner {
	t.Helper()
	return NewProvisioner(fs, zaptest.NewLogger(t), force).
		WithClock(func() time.Time { return fixedNow })
}

func TestEnsureAllFreshDatabase(t *testing.T) {
	fs := newFakeStore()
	p := newTestProvisioner(t, fs, false)
	locs := DefaultLocations("lh_test_monitoring")

	results := p.EnsureAll(context.Background(), locs)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.Equal(t, ActionCreated, r.Action, r.Table)
		assert.Empty(t, r.Advisories, r.Table)
	}

	// event log starts empty, date dim covers the full window, time dim is fixed
	assert.Equal(t, int64(0), results[0].RowsWritten)
	assert.Equal(t, int64(model.DateDimBackfillDays+model.DateDimCreateForwardDays+1), results[1].RowsWritten)
	assert.Equal(t, int64(model.TimeDimRowCount), results[2].RowsWritten)
}

func TestEnsureAllIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	p := newTestProvisioner(t, fs, false)
	locs := DefaultLocations("lh_test_monitoring")

	p.EnsureAll(context.Background(), locs)
	results := p.EnsureAll(context.Background(), locs)

	for _, r := range results {
		assert.Equal(t, ActionNone, r.Action, r.Table)
		assert.Equal(t, int64(0), r.RowsWritten, r.Table)
	}
}

func TestEnsureEventLogPreservesRecords(t *testing.T) {
	fs := newFakeStore()
	p := newTestProvisioner(t, fs, false)
	loc := store.Location{Schema: "s", Table: model.EventLogTable}

	p.EnsureEventLog(context.Background(), loc)
	fs.tables[loc.Qualified()].rows = append(fs.tables[loc.Qualified()].rows, []any{"x"})

	result := p.EnsureEventLog(context.Background(), loc)
	assert.Equal(t, ActionNone, result.Action)
	assert.Len(t, fs.tables[loc.Qualified()].rows, 1)
}

func TestEnsureEventLogForceRecreates(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.EventLogTable}

	newTestProvisioner(t, fs, false).EnsureEventLog(context.Background(), loc)
	fs.tables[loc.Qualified()].rows = append(fs.tables[loc.Qualified()].rows, []any{"x"})

	result := newTestProvisioner(t, fs, true).EnsureEventLog(context.Background(), loc)
	assert.Equal(t, ActionRecreated, result.Action)
	assert.Empty(t, fs.tables[loc.Qualified()].rows)
}

func TestEnsureEventLogMissingColumnAdvisory(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.EventLogTable}

	// existing table with an older, narrower schema
	partial := model.Schema{Columns: model.EventLogSchema.Columns[:4]}
	require.NoError(t, fs.CreateTable(context.Background(), loc, partial, store.CreateIfAbsent))

	result := newTestProvisioner(t, fs, false).EnsureEventLog(context.Background(), loc)
	assert.Equal(t, ActionNone, result.Action)
	require.Len(t, result.Advisories, 1)
	assert.Contains(t, result.Advisories[0].Detail, "missing columns")
}

func TestEnsureEventLogProbeFailureFallsBackToCreate(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.EventLogTable}
	fs.probeErr[loc.Qualified()] = store.ErrUnavailable

	result := newTestProvisioner(t, fs, false).EnsureEventLog(context.Background(), loc)
	assert.Equal(t, ActionCreated, result.Action)
	require.NotEmpty(t, result.Advisories)
	assert.Contains(t, result.Advisories[0].Detail, "probe failed")
}

func TestEnsureDateDimExtension(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.DateDimTable}
	ctx := context.Background()

	// dimension whose coverage ends 100 days out, inside the 365-day horizon
	require.NoError(t, fs.CreateTable(ctx, loc, model.DateDimSchema, store.CreateIfAbsent))
	maxDate := fixedNow.AddDate(0, 0, 100)
	seed := model.DateRange(fixedNow, maxDate)
	_, err := fs.InsertMissing(ctx, loc, model.DateDimSchema, dateRowValues(seed))
	require.NoError(t, err)

	result := newTestProvisioner(t, fs, false).EnsureDateDim(ctx, loc)
	assert.Equal(t, ActionExtended, result.Action)

	// exactly the days from maxDate+1 through now+365
	assert.Equal(t, int64(model.DateDimRequiredForwardDays-100), result.RowsWritten)

	max, err := fs.MaxKey(ctx, loc, "date_key")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 0, model.DateDimRequiredForwardDays).Format(model.DateKeyFormat), max)
}

func TestEnsureDateDimNoExtensionWhenCovered(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.DateDimTable}
	ctx := context.Background()

	p := newTestProvisioner(t, fs, false)
	p.EnsureDateDim(ctx, loc) // fresh create covers now+730

	result := p.EnsureDateDim(ctx, loc)
	assert.Equal(t, ActionNone, result.Action)
	assert.Equal(t, int64(0), result.RowsWritten)
}

func TestEnsureDateDimUnreadableMaxMergesFullWindow(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.DateDimTable}
	ctx := context.Background()

	require.NoError(t, fs.CreateTable(ctx, loc, model.DateDimSchema, store.CreateIfAbsent))
	fs.maxKeyErr = errors.New("backend hiccup")

	result := newTestProvisioner(t, fs, false).EnsureDateDim(ctx, loc)
	assert.Equal(t, ActionExtended, result.Action)
	require.Len(t, result.Advisories, 1)

	// insert-only merge fills the entire window without duplicates
	assert.Equal(t, int64(model.DateDimBackfillDays+model.DateDimCreateForwardDays+1), result.RowsWritten)
}

func TestEnsureTimeDimFixedCardinality(t *testing.T) {
	fs := newFakeStore()
	loc := store.Location{Schema: "s", Table: model.TimeDimTable}
	ctx := context.Background()

	p := newTestProvisioner(t, fs, false)

	result := p.EnsureTimeDim(ctx, loc)
	assert.Equal(t, ActionCreated, result.Action)
	assert.Equal(t, int64(model.TimeDimRowCount), result.RowsWritten)

	result = p.EnsureTimeDim(ctx, loc)
	assert.Equal(t, ActionNone, result.Action)
	assert.Len(t, fs.tables[loc.Qualified()].rows, model.TimeDimRowCount)
}

func TestCreateFailureIsAdvisoryNotFatal(t *testing.T) {
	fs := newFakeStore()
	fs.createErr = errors.New("permission denied")
	p := newTestProvisioner(t, fs, false)
	locs := DefaultLocations("s")

	results := p.EnsureAll(context.Background(), locs)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, ActionNone, r.Action)
		assert.NotEmpty(t, r.Advisories)
	}
}
