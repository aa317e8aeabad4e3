// pkg/model/schema.go
package model

// Logical table names under the monitoring schema
const (
	EventLogTable = "event_log"
	DateDimTable  = "dim_date"
	TimeDimTable  = "dim_time"
)

// Column describes one column of a logical table. Types are portable SQL
// spellings accepted by every supported backend.
type Column struct {
	Name    string
	Type    string
	NotNull bool
}

// Schema describes a logical table. Key names the match column for
// insert-only upserts; empty means the table has no upsert key.
type Schema struct {
	Columns []Column
	Key     string
}

// ColumnNames returns the column names in declaration order
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// EventLogSchema is the append-only operation log
var EventLogSchema = Schema{
	Columns: []Column{
		{Name: "notebook_name", Type: "VARCHAR"},
		{Name: "table_name", Type: "VARCHAR"},
		{Name: "operation_type", Type: "VARCHAR"},
		{Name: "user_name", Type: "VARCHAR"},
		{Name: "rows_before", Type: "BIGINT"},
		{Name: "rows_after", Type: "BIGINT"},
		{Name: "rows_changed", Type: "BIGINT"},
		{Name: "execution_time", Type: "DECIMAL(10,6)"},
		{Name: "message", Type: "VARCHAR"},
		{Name: "error_message", Type: "VARCHAR"},
		{Name: "date_stamp", Type: "VARCHAR"},
		{Name: "time_stamp", Type: "VARCHAR"},
		{Name: "ts", Type: "TIMESTAMP"},
	},
}

// DateDimSchema is the date dimension, keyed by the calendar date string
var DateDimSchema = Schema{
	Columns: []Column{
		{Name: "date_key", Type: "VARCHAR", NotNull: true},
		{Name: "date_value", Type: "DATE", NotNull: true},
		{Name: "year", Type: "INTEGER", NotNull: true},
		{Name: "month", Type: "INTEGER", NotNull: true},
		{Name: "day", Type: "INTEGER", NotNull: true},
		{Name: "quarter", Type: "INTEGER", NotNull: true},
		{Name: "week_of_year", Type: "INTEGER", NotNull: true},
		{Name: "day_of_week", Type: "INTEGER", NotNull: true},
		{Name: "month_name", Type: "VARCHAR", NotNull: true},
		{Name: "day_name", Type: "VARCHAR", NotNull: true},
		{Name: "is_weekend", Type: "BOOLEAN", NotNull: true},
	},
	Key: "date_key",
}

// TimeDimSchema is the minute-of-day dimension, keyed by the "HH:MM:00" string
var TimeDimSchema = Schema{
	Columns: []Column{
		{Name: "time_key", Type: "VARCHAR", NotNull: true},
		{Name: "hour", Type: "INTEGER", NotNull: true},
		{Name: "minute", Type: "INTEGER", NotNull: true},
		{Name: "hour_group", Type: "VARCHAR", NotNull: true},
		{Name: "time_period", Type: "VARCHAR", NotNull: true},
		{Name: "is_business_hours", Type: "BOOLEAN", NotNull: true},
	},
	Key: "time_key",
}
