package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/registry"
	"github.com/roach88/assetgov/internal/runid"
	"github.com/roach88/assetgov/internal/store"
)

// MetricRecordsIngested is the asset metric written after each copy.
const MetricRecordsIngested = "records_ingested"

// ErrInvalidIdentifier is returned for a schema or table name that is not
// a plain SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens a source or target database. driver is one of postgres,
// mysql or sqlite3.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Request describes one copy.
type Request struct {
	// AssetKey is the governance asset the copy is recorded against.
	AssetKey string
	// Query selects source rows. It takes the window start and end as its
	// two parameters, in the source driver's placeholder syntax.
	Query string
	// Table is the target table, qualified by the copier's schema if set.
	Table string
	// Truncate empties the target table inside the copy transaction.
	Truncate bool
	Window   Window
}

// Copier moves rows from a source to a target database.
type Copier struct {
	source   *sql.DB
	target   *sql.DB
	dialect  string
	schema   string
	store    *store.Store
	registry *registry.Registry
	clock    clock.Clock
	ids      runid.Generator
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// Option configures a Copier.
type Option func(*Copier)

// WithTarget sets the target driver name, which selects the placeholder
// syntax, and the schema tables are created in.
func WithTarget(driver, schema string) Option {
	return func(c *Copier) {
		c.dialect = driver
		c.schema = schema
	}
}

// WithGovernance records each copy as an asset execution, its row count as
// an asset metric and the source columns as the asset schema.
func WithGovernance(st *store.Store, reg *registry.Registry) Option {
	return func(c *Copier) {
		c.store = st
		c.registry = reg
	}
}

// WithClock sets the time source. Defaults to clock.System.
func WithClock(cl clock.Clock) Option {
	return func(c *Copier) { c.clock = clock.OrSystem(cl) }
}

// WithRunIDs sets the run id generator. Defaults to UUIDv7.
func WithRunIDs(g runid.Generator) Option {
	return func(c *Copier) {
		if g != nil {
			c.ids = g
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Copier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Copier) { c.metrics = m }
}

// NewCopier creates a Copier reading from source and writing to target.
func NewCopier(source, target *sql.DB, opts ...Option) *Copier {
	c := &Copier{
		source:  source,
		target:  target,
		dialect: "postgres",
		clock:   clock.System{},
		ids:     runid.UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Copy runs req.Query over req.Window and inserts every row into the target
// table in one transaction. It returns the number of rows copied.
//
// The outcome is recorded as an execution of req.AssetKey. Governance
// writes are best effort: a failure there is logged and never fails the
// copy or masks its error.
func (c *Copier) Copy(ctx context.Context, req Request) (int64, error) {
	runID := c.ids.Generate()
	started := c.clock.Now()
	logger := c.logger.With("asset_key", req.AssetKey, "run_id", runID)
	logger.Info("copy started", "window", req.Window.String(), "table", req.Table)

	n, cols, err := c.copy(ctx, req)
	completed := c.clock.Now()

	rec := model.ExecutionRecord{
		AssetKey:    req.AssetKey,
		RunID:       runID,
		WindowStart: model.Time(req.Window.Start),
		WindowEnd:   model.Time(req.Window.End),
		StartedAt:   started,
		CompletedAt: &completed,
	}
	if err != nil {
		rec.Status = model.ExecutionFailed
		rec.Metadata = map[string]any{"error": err.Error(), "target_table": req.Table}
		logger.Error("copy failed", "error", err)
	} else {
		rec.Status = model.ExecutionSuccess
		rec.RecordsProcessed = model.Int64(n)
		rec.Metadata = map[string]any{"columns": columnNames(cols), "target_table": req.Table}
		logger.Info("copy complete", "rows", n, "duration", completed.Sub(started).String())
	}
	c.record(context.WithoutCancel(ctx), rec, cols, logger)

	return n, err
}

func (c *Copier) copy(ctx context.Context, req Request) (int64, []model.SchemaColumn, error) {
	table, err := c.qualified(req.Table)
	if err != nil {
		return 0, nil, err
	}

	rows, err := c.source.QueryContext(ctx, req.Query, req.Window.Start, req.Window.End)
	if err != nil {
		return 0, nil, fmt.Errorf("query source: %w", err)
	}
	defer rows.Close()

	cols, err := sourceColumns(rows, c.clock)
	if err != nil {
		return 0, nil, err
	}
	for _, col := range cols {
		if !identPattern.MatchString(col.Name) {
			return 0, nil, fmt.Errorf("%w: source column %q", ErrInvalidIdentifier, col.Name)
		}
	}

	tx, err := c.target.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if req.Truncate {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, nil, fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, c.insertSQL(table, cols))
	if err != nil {
		return 0, nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var n int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return 0, nil, fmt.Errorf("scan row %d: %w", n+1, err)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, nil, fmt.Errorf("insert row %d: %w", n+1, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("read source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return n, cols, nil
}

func (c *Copier) qualified(table string) (string, error) {
	if !identPattern.MatchString(table) {
		return "", fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	if c.schema == "" {
		return table, nil
	}
	if !identPattern.MatchString(c.schema) {
		return "", fmt.Errorf("%w: schema %q", ErrInvalidIdentifier, c.schema)
	}
	return c.schema + "." + table, nil
}

func (c *Copier) insertSQL(table string, cols []model.SchemaColumn) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		if c.dialect == "postgres" {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(marks, ", "))
}

func sourceColumns(rows *sql.Rows, cl clock.Clock) ([]model.SchemaColumn, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("source columns: %w", err)
	}
	now := cl.Now()
	cols := make([]model.SchemaColumn, len(types))
	for i, ct := range types {
		dataType := ct.DatabaseTypeName()
		if dataType == "" {
			dataType = "UNKNOWN"
		}
		nullable, ok := ct.Nullable()
		cols[i] = model.SchemaColumn{
			Name:       ct.Name(),
			DataType:   dataType,
			IsNullable: nullable || !ok,
			LastSeen:   now,
		}
	}
	return cols, nil
}

func columnNames(cols []model.SchemaColumn) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

func (c *Copier) record(ctx context.Context, rec model.ExecutionRecord, cols []model.SchemaColumn, logger *slog.Logger) {
	c.metrics.Execution(string(rec.Status))
	if c.store == nil {
		return
	}
	if _, err := c.store.SaveExecution(ctx, rec); err != nil {
		logger.Warn("record execution", "error", err)
	}
	if rec.Status != model.ExecutionSuccess || c.registry == nil {
		return
	}
	if err := c.registry.RecordMetric(ctx, rec.AssetKey, MetricRecordsIngested, float64(*rec.RecordsProcessed)); err != nil {
		logger.Warn("record metric", "error", err)
	}
	if err := c.registry.UpdateSchema(ctx, rec.AssetKey, cols); err != nil {
		logger.Warn("record schema", "error", err)
	}
}
