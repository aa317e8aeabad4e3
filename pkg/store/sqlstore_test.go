// pkg/store/sqlstore_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lakelog/pkg/config"
	"lakelog/pkg/connector"
	"lakelog/pkg/model"
)

// newTestStore opens an in-memory DuckDB database with the monitoring schema
// created
func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	conn, err := connector.NewDuckDBConnector(ctx, &config.DuckDBConfig{
		Path:         "", // in-memory
		QueryTimeout: 30 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.EnsureSchema(ctx, "lh_test_monitoring"))

	return NewSQLStore(conn, zaptest.NewLogger(t))
}

func testLoc(table string) Location {
	return Location{Schema: "lh_test_monitoring", Table: table}
}

func TestProbeAbsentTable(t *testing.T) {
	st := newTestStore(t)

	probe, err := st.Probe(context.Background(), testLoc("nope"))
	require.NoError(t, err, "absence must be a result, not an error")
	assert.False(t, probe.Exists)
	assert.Empty(t, probe.Columns)
}

func TestCreateProbeAppend(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.TimeDimTable)

	require.NoError(t, st.CreateTable(ctx, loc, model.TimeDimSchema, CreateIfAbsent))

	probe, err := st.Probe(ctx, loc)
	require.NoError(t, err)
	assert.True(t, probe.Exists)
	assert.Equal(t, int64(0), probe.RowCount)
	assert.Empty(t, probe.MissingColumns(model.TimeDimSchema))

	rows := [][]any{
		model.TimeDimRow{TimeKey: "00:00:00", Hour: 0, Minute: 0, HourGroup: "00:00", TimePeriod: "Night"}.Row(),
		model.TimeDimRow{TimeKey: "00:01:00", Hour: 0, Minute: 1, HourGroup: "00:00", TimePeriod: "Night"}.Row(),
	}
	written, err := st.Append(ctx, loc, model.TimeDimSchema, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	probe, err = st.Probe(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(2), probe.RowCount)
}

func TestCreateIfAbsentPreservesContent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.TimeDimTable)

	require.NoError(t, st.CreateTable(ctx, loc, model.TimeDimSchema, CreateIfAbsent))
	_, err := st.Append(ctx, loc, model.TimeDimSchema, [][]any{
		model.TimeDimRow{TimeKey: "09:00:00", Hour: 9, HourGroup: "09:00", TimePeriod: "Morning", IsBusinessHours: true}.Row(),
	})
	require.NoError(t, err)

	// a second idempotent create must not touch the row
	require.NoError(t, st.CreateTable(ctx, loc, model.TimeDimSchema, CreateIfAbsent))
	probe, err := st.Probe(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), probe.RowCount)

	// overwrite drops it
	require.NoError(t, st.CreateTable(ctx, loc, model.TimeDimSchema, Overwrite))
	probe, err = st.Probe(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(0), probe.RowCount)
}

func TestInsertMissingIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.DateDimTable)

	require.NoError(t, st.CreateTable(ctx, loc, model.DateDimSchema, CreateIfAbsent))

	day := func(d int) []any {
		return model.NewDateDimRow(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)).Row()
	}

	written, err := st.InsertMissing(ctx, loc, model.DateDimSchema, [][]any{day(1), day(2), day(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), written)

	// same rows again: nothing to do
	written, err = st.InsertMissing(ctx, loc, model.DateDimSchema, [][]any{day(1), day(2), day(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), written)

	// overlapping window: only the new day lands
	written, err = st.InsertMissing(ctx, loc, model.DateDimSchema, [][]any{day(3), day(4)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)

	probe, err := st.Probe(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(4), probe.RowCount)
}

func TestMaxKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.DateDimTable)

	// a query failure is an I/O error, only a NULL aggregate means absence
	_, err := st.MaxKey(ctx, loc, "date_key")
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsNotFound(err))

	require.NoError(t, st.CreateTable(ctx, loc, model.DateDimSchema, CreateIfAbsent))

	// empty table
	_, err = st.MaxKey(ctx, loc, "date_key")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnavailable(err))

	rows := [][]any{
		model.NewDateDimRow(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).Row(),
		model.NewDateDimRow(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)).Row(),
		model.NewDateDimRow(time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)).Row(),
	}
	_, err = st.Append(ctx, loc, model.DateDimSchema, rows)
	require.NoError(t, err)

	max, err := st.MaxKey(ctx, loc, "date_key")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", max)
}

func TestCountAndDeleteWhere(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.DateDimTable)

	require.NoError(t, st.CreateTable(ctx, loc, model.DateDimSchema, CreateIfAbsent))

	rows := make([][]any, 0, 10)
	for d := 1; d <= 10; d++ {
		rows = append(rows, model.NewDateDimRow(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)).Row())
	}
	_, err := st.Append(ctx, loc, model.DateDimSchema, rows)
	require.NoError(t, err)

	count, err := st.CountWhere(ctx, loc, "date_key < ?", "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	removed, err := st.DeleteWhere(ctx, loc, "date_key < ?", "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	require.NoError(t, st.Compact(ctx, loc))

	probe, err := st.Probe(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(6), probe.RowCount)
}

func TestSelectAndGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.DateDimTable)

	require.NoError(t, st.CreateTable(ctx, loc, model.DateDimSchema, CreateIfAbsent))
	_, err := st.Append(ctx, loc, model.DateDimSchema, [][]any{
		model.NewDateDimRow(time.Date(2024, 7, 6, 0, 0, 0, 0, time.UTC)).Row(),
		model.NewDateDimRow(time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC)).Row(),
	})
	require.NoError(t, err)

	var dims []model.DateDimRow
	err = st.Select(ctx, &dims, "SELECT * FROM "+loc.Qualified()+" WHERE is_weekend = ?", true)
	require.NoError(t, err)
	require.Len(t, dims, 1)
	assert.Equal(t, "2024-07-06", dims[0].DateKey)

	var total int64
	err = st.Get(ctx, &total, "SELECT COUNT(*) FROM "+loc.Qualified())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestMissingColumnsDetection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := testLoc(model.EventLogTable)

	// create with a truncated schema, then probe against the full one
	partial := model.Schema{Columns: model.EventLogSchema.Columns[:4]}
	require.NoError(t, st.CreateTable(ctx, loc, partial, CreateIfAbsent))

	probe, err := st.Probe(ctx, loc)
	require.NoError(t, err)
	missing := probe.MissingColumns(model.EventLogSchema)
	assert.Contains(t, missing, "rows_before")
	assert.Contains(t, missing, "ts")
	assert.NotContains(t, missing, "notebook_name")
}
