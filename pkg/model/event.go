// pkg/model/event.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is one row of the event log. Records are append-only: they are
// written once by the event logger and removed only by the retention trim.
//
// Message and ErrorMessage are independently optional. By convention only one
// of them is meaningful per record, but this is not enforced.
type EventRecord struct {
	NotebookName  string          `db:"notebook_name" json:"notebook_name"`
	TableName     string          `db:"table_name" json:"table_name"`
	OperationType string          `db:"operation_type" json:"operation_type"`
	UserName      string          `db:"user_name" json:"user_name"`
	RowsBefore    int64           `db:"rows_before" json:"rows_before"`
	RowsAfter     int64           `db:"rows_after" json:"rows_after"`
	RowsChanged   int64           `db:"rows_changed" json:"rows_changed"`
	ExecutionTime decimal.Decimal `db:"execution_time" json:"execution_time"`
	Message       *string         `db:"message" json:"message,omitempty"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	DateStamp     string          `db:"date_stamp" json:"date_stamp"`
	TimeStamp     string          `db:"time_stamp" json:"time_stamp"`
	Timestamp     time.Time       `db:"ts" json:"ts"`
}

// Row returns the record's values in EventLogSchema column order
func (e EventRecord) Row() []any {
	return []any{
		e.NotebookName,
		e.TableName,
		e.OperationType,
		e.UserName,
		e.RowsBefore,
		e.RowsAfter,
		e.RowsChanged,
		e.ExecutionTime,
		e.Message,
		e.ErrorMessage,
		e.DateStamp,
		e.TimeStamp,
		e.Timestamp,
	}
}

// Statistics summarizes the event log contents
type Statistics struct {
	TotalRecords     int64 `db:"total_records" json:"total_records"`
	UniqueNotebooks  int64 `db:"unique_notebooks" json:"unique_notebooks"`
	UniqueTables     int64 `db:"unique_tables" json:"unique_tables"`
	UniqueOperations int64 `db:"unique_operations" json:"unique_operations"`
}
