// pkg/provision/provisioner.go
package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lakelog/pkg/model"
	"lakelog/pkg/store"
)

// Locations groups the three monitoring tables derived from one base schema
type Locations struct {
	EventLog store.Location
	DateDim  store.Location
	TimeDim  store.Location
}

// DefaultLocations derives the deterministic table locations for a schema
func DefaultLocations(schema string) Locations {
	return Locations{
		EventLog: store.Location{Schema: schema, Table: model.EventLogTable},
		DateDim:  store.Location{Schema: schema, Table: model.DateDimTable},
		TimeDim:  store.Location{Schema: schema, Table: model.TimeDimTable},
	}
}

// All returns the locations as a slice, event log first
func (l Locations) All() []store.Location {
	return []store.Location{l.EventLog, l.DateDim, l.TimeDim}
}

// Action describes what the provisioner did to a table
type Action int

const (
	// ActionNone means the table was compatible and left untouched
	ActionNone Action = iota
	// ActionCreated means the table was created fresh
	ActionCreated
	// ActionRecreated means the table was overwritten (force mode)
	ActionRecreated
	// ActionExtended means new dimension rows were merged in
	ActionExtended
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreated:
		return "created"
	case ActionRecreated:
		return "recreated"
	case ActionExtended:
		return "extended"
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// Advisory is a non-fatal problem noticed while provisioning a table.
// Advisories are reported to the caller and logged; they never abort
// provisioning.
type Advisory struct {
	Table  string
	Detail string
	Err    error
}

func (a Advisory) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: %s: %v", a.Table, a.Detail, a.Err)
	}
	return fmt.Sprintf("%s: %s", a.Table, a.Detail)
}

// Result is the outcome of provisioning one table
type Result struct {
	Table       string
	Action      Action
	RowsWritten int64
	Advisories  []Advisory
}

func (r *Result) advise(logger *zap.Logger, detail string, err error) {
	adv := Advisory{Table: r.Table, Detail: detail, Err: err}
	r.Advisories = append(r.Advisories, adv)
	logger.Warn("Provisioning advisory",
		zap.String("table", r.Table),
		zap.String("detail", detail),
		zap.Error(err))
}

// Provisioner decides create vs. extend vs. no-op vs. force-recreate for
// each of the three monitoring tables and performs the write. Failures
// while reading current state fall back to the create path; write failures
// become advisories. Provisioning never aborts.
type Provisioner struct {
	store  store.TableStore
	logger *zap.Logger
	force  bool
	now    func() time.Time
}

// NewProvisioner creates a provisioner
func NewProvisioner(st store.TableStore, logger *zap.Logger, force bool) *Provisioner {
	return &Provisioner{
		store:  st,
		logger: logger.Named("provisioner"),
		force:  force,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, used by tests to pin horizons
func (p *Provisioner) WithClock(now func() time.Time) *Provisioner {
	p.now = now
	return p
}

// EnsureAll provisions the three tables in order. Each table is an
// independent operation; a failure on one never rolls back another.
func (p *Provisioner) EnsureAll(ctx context.Context, locs Locations) []Result {
	results := []Result{
		p.EnsureEventLog(ctx, locs.EventLog),
		p.EnsureDateDim(ctx, locs.DateDim),
		p.EnsureTimeDim(ctx, locs.TimeDim),
	}

	for _, r := range results {
		p.logger.Info("Provisioned table",
			zap.String("table", r.Table),
			zap.String("action", r.Action.String()),
			zap.Int64("rows_written", r.RowsWritten),
			zap.Int("advisories", len(r.Advisories)))
	}

	return results
}

// EnsureEventLog creates the event log when absent. An existing log is left
// untouched apart from a missing-column advisory; force mode recreates it
// empty, losing history.
func (p *Provisioner) EnsureEventLog(ctx context.Context, loc store.Location) Result {
	result := Result{Table: loc.Qualified()}

	probe, err := p.store.Probe(ctx, loc)
	if err != nil {
		// treat an unreadable table as likely absent and try to create it
		result.advise(p.logger, "state probe failed, attempting create", err)
		probe = store.ProbeResult{}
	}

	if probe.Exists && !p.force {
		if missing := probe.MissingColumns(model.EventLogSchema); len(missing) > 0 {
			result.advise(p.logger,
				fmt.Sprintf("missing columns %v, schema evolution applies on next append", missing), nil)
		}
		p.logger.Info("Event log exists, records preserved",
			zap.String("table", loc.Qualified()),
			zap.Int64("records", probe.RowCount))
		return result
	}

	mode := store.CreateIfAbsent
	result.Action = ActionCreated
	if p.force && probe.Exists {
		mode = store.Overwrite
		result.Action = ActionRecreated
	}

	if err := p.store.CreateTable(ctx, loc, model.EventLogSchema, mode); err != nil {
		result.advise(p.logger, "create failed", err)
		result.Action = ActionNone
	}

	return result
}

// EnsureDateDim creates the date dimension with a four-year window, or
// extends it with only the missing days when the stored maximum no longer
// covers the forward horizon. Existing rows are never touched outside force
// mode.
func (p *Provisioner) EnsureDateDim(ctx context.Context, loc store.Location) Result {
	result := Result{Table: loc.Qualified()}
	now := p.now()

	probe, err := p.store.Probe(ctx, loc)
	if err != nil {
		result.advise(p.logger, "state probe failed, attempting create", err)
		probe = store.ProbeResult{}
	}

	if probe.Exists && !p.force {
		maxKey, err := p.store.MaxKey(ctx, loc, "date_key")
		if err != nil {
			// unreadable max key: merge the full window, insert-only
			result.advise(p.logger, "max date key unreadable, merging full window", err)
			return p.mergeDateRows(ctx, loc, result,
				model.DateRange(now.AddDate(0, 0, -model.DateDimBackfillDays),
					now.AddDate(0, 0, model.DateDimCreateForwardDays)))
		}

		maxDate, err := time.Parse(model.DateKeyFormat, maxKey)
		if err != nil {
			result.advise(p.logger, "unparseable max date key, merging full window", err)
			return p.mergeDateRows(ctx, loc, result,
				model.DateRange(now.AddDate(0, 0, -model.DateDimBackfillDays),
					now.AddDate(0, 0, model.DateDimCreateForwardDays)))
		}

		required := now.AddDate(0, 0, model.DateDimRequiredForwardDays)
		if maxDate.Before(truncateToDay(required)) {
			// extend with exactly the days from maxDate+1 through the horizon
			rows := model.DateRange(maxDate.AddDate(0, 0, 1), required)
			p.logger.Info("Extending date dimension",
				zap.String("table", loc.Qualified()),
				zap.String("max_date", maxKey),
				zap.Int("new_days", len(rows)))
			return p.mergeDateRows(ctx, loc, result, rows)
		}

		p.logger.Info("Date dimension covers horizon",
			zap.String("table", loc.Qualified()),
			zap.String("max_date", maxKey),
			zap.Int64("rows", probe.RowCount))
		return result
	}

	mode := store.CreateIfAbsent
	result.Action = ActionCreated
	if p.force && probe.Exists {
		mode = store.Overwrite
		result.Action = ActionRecreated
	}

	if err := p.store.CreateTable(ctx, loc, model.DateDimSchema, mode); err != nil {
		result.advise(p.logger, "create failed", err)
		result.Action = ActionNone
		return result
	}

	rows := model.DateRange(
		now.AddDate(0, 0, -model.DateDimBackfillDays),
		now.AddDate(0, 0, model.DateDimCreateForwardDays))

	written, err := p.store.InsertMissing(ctx, loc, model.DateDimSchema, dateRowValues(rows))
	if err != nil {
		result.advise(p.logger, "populating date dimension failed", err)
		return result
	}
	result.RowsWritten = written
	return result
}

func (p *Provisioner) mergeDateRows(ctx context.Context, loc store.Location, result Result, rows []model.DateDimRow) Result {
	if len(rows) == 0 {
		return result
	}

	written, err := p.store.InsertMissing(ctx, loc, model.DateDimSchema, dateRowValues(rows))
	if err != nil {
		result.advise(p.logger, "date dimension merge failed", err)
		return result
	}

	result.Action = ActionExtended
	result.RowsWritten = written
	return result
}

// EnsureTimeDim creates the fixed 1440-row time dimension. An existing
// table is never extended, only recreated in force mode.
func (p *Provisioner) EnsureTimeDim(ctx context.Context, loc store.Location) Result {
	result := Result{Table: loc.Qualified()}

	probe, err := p.store.Probe(ctx, loc)
	if err != nil {
		result.advise(p.logger, "state probe failed, attempting create", err)
		probe = store.ProbeResult{}
	}

	if probe.Exists && !p.force {
		p.logger.Info("Time dimension exists",
			zap.String("table", loc.Qualified()),
			zap.Int64("rows", probe.RowCount))
		return result
	}

	mode := store.CreateIfAbsent
	result.Action = ActionCreated
	if p.force && probe.Exists {
		mode = store.Overwrite
		result.Action = ActionRecreated
	}

	if err := p.store.CreateTable(ctx, loc, model.TimeDimSchema, mode); err != nil {
		result.advise(p.logger, "create failed", err)
		result.Action = ActionNone
		return result
	}

	rows := model.TimeRange()
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.Row()
	}

	written, err := p.store.InsertMissing(ctx, loc, model.TimeDimSchema, values)
	if err != nil {
		result.advise(p.logger, "populating time dimension failed", err)
		return result
	}
	result.RowsWritten = written
	return result
}

func dateRowValues(rows []model.DateDimRow) [][]any {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.Row()
	}
	return values
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
