// pkg/lakelog/logger.go
package lakelog

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lakelog/pkg/config"
	"lakelog/pkg/connector"
	"lakelog/pkg/model"
	"lakelog/pkg/provision"
	"lakelog/pkg/semantic"
	"lakelog/pkg/store"
)

// DefaultUserName is recorded when the operating system user cannot be
// resolved
const DefaultUserName = "lakelog_user"

// DefaultRetentionDays is the trim cutoff when the caller does not choose one
const DefaultRetentionDays = 90

// Operation describes one data operation to record. Only Notebook, Table and
// OperationType are required; everything else has a sensible default.
type Operation struct {
	Notebook      string
	Table         string
	OperationType string
	RowsBefore    int64
	RowsAfter     int64
	ExecutionTime decimal.Decimal
	Message       string
	Error         string
	User          string    // empty resolves to the OS user
	Timestamp     time.Time // zero means now
}

// Filter narrows a log query. Zero values mean "no constraint".
type Filter struct {
	Table         string
	OperationType string
	Limit         int // defaults to 100
}

// Logger is the top-level entry point. Construction provisions the
// monitoring tables, waits for them to become readable, and reconciles the
// semantic model; all of that is best-effort and never blocks event logging.
type Logger struct {
	cfg        *config.Config
	logger     *zap.Logger
	conn       connector.DatabaseConnector
	store      store.TableStore
	locs       provision.Locations
	gate       *provision.Gate
	svc        semantic.Service
	reconciler *semantic.Reconciler
	semanticOK bool
	ready      bool
	now        func() time.Time
	sleep      func(time.Duration)
}

// Option customizes Logger construction
type Option func(*options)

type options struct {
	store      store.TableStore
	service    semantic.Service
	tokens     semantic.TokenProvider
	now        func() time.Time
	sleep      func(time.Duration)
	skipEnsure bool
}

// WithStore injects a table store, bypassing connector creation. Used by
// tests and by callers that manage their own connection.
func WithStore(st store.TableStore) Option {
	return func(o *options) { o.store = st }
}

// WithSemanticService injects a semantic-model service implementation
func WithSemanticService(svc semantic.Service, tokens semantic.TokenProvider) Option {
	return func(o *options) {
		o.service = svc
		o.tokens = tokens
	}
}

// WithClock overrides the wall clock, used by tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep overrides the polling sleep, used by tests
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithoutProvisioning skips table provisioning and the readiness gate.
// Useful when another process owns the schema.
func WithoutProvisioning() Option {
	return func(o *options) { o.skipEnsure = true }
}

// New builds a Logger from configuration. It connects to the backend,
// provisions the three monitoring tables, waits for them to be readable and,
// when a semantic service is configured, reconciles the model. Provisioning
// and reconciliation problems are logged and reported but only a failed
// connection is a hard error.
func New(ctx context.Context, cfg *config.Config, zlog *zap.Logger, opts ...Option) (*Logger, error) {
	var o options
	o.now = time.Now
	o.sleep = time.Sleep
	for _, opt := range opts {
		opt(&o)
	}

	log := zlog.Named("lakelog").With(zap.String("project", cfg.ProjectName))

	l := &Logger{
		cfg:    cfg,
		logger: log,
		locs:   provision.DefaultLocations(cfg.LakehouseName()),
		now:    o.now,
		sleep:  o.sleep,
	}

	if o.store != nil {
		l.store = o.store
	} else {
		factory := connector.NewConnectorFactory(cfg, log)
		conn, err := factory.CreateConnector(ctx)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s backend: %w", cfg.Backend, err)
		}
		if err := conn.Validate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("validating %s connection: %w", cfg.Backend, err)
		}
		if err := conn.EnsureSchema(ctx, cfg.LakehouseName()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensuring schema %s: %w", cfg.LakehouseName(), err)
		}
		l.conn = conn
		l.store = store.NewSQLStore(conn, log)
	}

	l.gate = provision.NewGate(l.store, log, cfg.ReadyInterval).WithSleep(o.sleep)

	if !o.skipEnsure {
		prov := provision.NewProvisioner(l.store, log, cfg.ForceRecreate).WithClock(o.now)
		results := prov.EnsureAll(ctx, l.locs)
		for _, res := range results {
			for _, adv := range res.Advisories {
				log.Warn("Provisioning issue", zap.String("advisory", adv.String()))
			}
		}

		l.ready = l.gate.WaitReady(ctx, l.locs.All(), cfg.ReadyMaxRetries)
	} else {
		l.ready = true
	}

	l.wireSemantic(o)

	if l.semanticOK && l.ready && !o.skipEnsure {
		result := l.reconciler.Reconcile(ctx)
		if !result.Succeeded() {
			log.Warn("Semantic model reconciliation incomplete",
				zap.Bool("relationships_ok", result.Relationships.Succeeded()),
				zap.Bool("measures_ok", result.Measures.Succeeded()))
		}
	}

	log.Info("Logger initialized",
		zap.String("lakehouse", cfg.LakehouseName()),
		zap.String("backend", string(cfg.Backend)),
		zap.Bool("ready", l.ready),
		zap.Bool("semantic", l.semanticOK))

	return l, nil
}

func (l *Logger) wireSemantic(o options) {
	svc := o.service
	tokens := o.tokens

	if svc == nil {
		sc := l.cfg.Semantic
		if sc == nil || sc.BaseURL == "" {
			return
		}
		svc = semantic.NewRESTClient(sc, l.cfg.Workspace, l.logger)
		tokens = semantic.NewEnvTokenProvider(sc.TokenEnvVar)
	}

	if tokens == nil {
		// an injected service with no credentials can still read and create
		// the model; write sessions fall back to manual instructions
		tokens = semantic.StaticTokenProvider{}
	}

	modelName := "SM_" + l.cfg.ProjectName + "_Monitoring"
	scope := ""
	if l.cfg.Semantic != nil {
		if l.cfg.Semantic.ModelName != "" {
			modelName = l.cfg.Semantic.ModelName
		}
		scope = l.cfg.Semantic.TokenScope
	}

	l.svc = svc
	l.reconciler = semantic.NewReconciler(svc, tokens, modelName, scope, l.logger).WithSleep(l.sleep)
	l.semanticOK = true
}

// Close releases the underlying connection. Safe on a Logger built with an
// injected store.
func (l *Logger) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// Ready reports whether all monitoring tables passed the readiness gate
func (l *Logger) Ready() bool {
	return l.ready
}

// LogOperation appends one event record. The date and time dimension keys
// are derived from the operation timestamp so the record always joins
// cleanly. Unlike provisioning, a failed append is a hard error: silently
// dropping log records would defeat the point.
func (l *Logger) LogOperation(ctx context.Context, op Operation) error {
	if op.Notebook == "" || op.Table == "" || op.OperationType == "" {
		return fmt.Errorf("notebook, table and operation type are required")
	}

	ts := op.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	userName := op.User
	if userName == "" {
		userName = currentUser()
	}

	rec := model.EventRecord{
		NotebookName:  op.Notebook,
		TableName:     op.Table,
		OperationType: op.OperationType,
		UserName:      userName,
		RowsBefore:    op.RowsBefore,
		RowsAfter:     op.RowsAfter,
		RowsChanged:   op.RowsAfter - op.RowsBefore,
		ExecutionTime: op.ExecutionTime,
		DateStamp:     ts.Format(model.DateKeyFormat),
		TimeStamp:     ts.Format(model.TimeKeyFormat),
		Timestamp:     ts,
	}
	if op.Message != "" {
		rec.Message = &op.Message
	}
	if op.Error != "" {
		rec.ErrorMessage = &op.Error
	}

	written, err := l.store.Append(ctx, l.locs.EventLog, model.EventLogSchema, [][]any{rec.Row()})
	if err != nil {
		return fmt.Errorf("appending event record for %s: %w", op.Table, err)
	}

	l.logger.Info("Logged operation",
		zap.String("notebook", op.Notebook),
		zap.String("table", op.Table),
		zap.String("operation", op.OperationType),
		zap.Int64("rows_changed", rec.RowsChanged),
		zap.Int64("written", written))

	return nil
}

// GetLogs returns event records matching the filter, newest first
func (l *Logger) GetLogs(ctx context.Context, filter Filter) ([]model.EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT * FROM " + l.locs.EventLog.Qualified() + " WHERE 1=1"
	var args []any
	if filter.Table != "" {
		query += " AND table_name = ?"
		args = append(args, filter.Table)
	}
	if filter.OperationType != "" {
		query += " AND operation_type = ?"
		args = append(args, filter.OperationType)
	}
	query += fmt.Sprintf(" ORDER BY ts DESC LIMIT %d", limit)

	var records []model.EventRecord
	if err := l.store.Select(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("querying event log: %w", err)
	}
	return records, nil
}

// GetStatistics returns summary counts over the whole event log
func (l *Logger) GetStatistics(ctx context.Context) (model.Statistics, error) {
	query := `SELECT
		COUNT(*) AS total_records,
		COUNT(DISTINCT notebook_name) AS unique_notebooks,
		COUNT(DISTINCT table_name) AS unique_tables,
		COUNT(DISTINCT operation_type) AS unique_operations
	FROM ` + l.locs.EventLog.Qualified()

	var stats model.Statistics
	if err := l.store.Get(ctx, &stats, query); err != nil {
		return model.Statistics{}, fmt.Errorf("computing statistics: %w", err)
	}
	return stats, nil
}

// Trim removes event records older than keepDays and compacts the table.
// Returns the number of removed records. keepDays <= 0 uses the default
// retention.
func (l *Logger) Trim(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		keepDays = DefaultRetentionDays
	}
	cutoff := l.now().AddDate(0, 0, -keepDays).Format(model.DateKeyFormat)

	count, err := l.store.CountWhere(ctx, l.locs.EventLog, "date_stamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("counting records before %s: %w", cutoff, err)
	}
	if count == 0 {
		l.logger.Info("No records past retention", zap.String("cutoff", cutoff))
		return 0, nil
	}

	deleted, err := l.store.DeleteWhere(ctx, l.locs.EventLog, "date_stamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting records before %s: %w", cutoff, err)
	}
	if deleted != count {
		l.logger.Warn("Deleted count differs from pre-read count",
			zap.Int64("counted", count),
			zap.Int64("deleted", deleted))
	}

	if err := l.store.Compact(ctx, l.locs.EventLog); err != nil {
		// space reclamation is opportunistic
		l.logger.Warn("Compaction after trim failed", zap.Error(err))
	}

	l.logger.Info("Trimmed event log",
		zap.String("cutoff", cutoff),
		zap.Int64("removed", count))

	// the pre-read count is the authoritative number, counted before deleting
	return count, nil
}

// ReconcileModel runs the semantic-model reconciliation on demand
func (l *Logger) ReconcileModel(ctx context.Context) (*semantic.Result, error) {
	if !l.semanticOK {
		return nil, fmt.Errorf("no semantic service configured")
	}
	return l.reconciler.Reconcile(ctx), nil
}

// WaitThenCreateModel polls table readiness in short rounds for up to
// maxWaitMinutes and reconciles the semantic model as soon as the tables are
// readable. Meant for cold starts where the backend is still coming up.
func (l *Logger) WaitThenCreateModel(ctx context.Context, maxWaitMinutes int) (*semantic.Result, error) {
	if !l.semanticOK {
		return nil, fmt.Errorf("no semantic service configured")
	}
	if maxWaitMinutes <= 0 {
		maxWaitMinutes = 5
	}

	// short probing rounds inside a longer wall-clock budget
	fastGate := provision.NewGate(l.store, l.logger, time.Second).WithSleep(l.sleep)

	attempts := maxWaitMinutes * 6
	for attempt := 1; attempt <= attempts; attempt++ {
		if fastGate.WaitReady(ctx, l.locs.All(), 3) {
			l.ready = true
			return l.reconciler.Reconcile(ctx), nil
		}
		l.logger.Info("Tables not ready yet",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))
		if attempt < attempts {
			l.sleep(10 * time.Second)
		}
	}

	return nil, fmt.Errorf("tables not ready after %d minutes", maxWaitMinutes)
}

func currentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return DefaultUserName
	}
	return u.Username
}
