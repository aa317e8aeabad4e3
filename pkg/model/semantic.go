// pkg/model/semantic.go
package model

import "fmt"

// RelationshipDef is one relationship of the semantic model
type RelationshipDef struct {
	FromTable       string `json:"from_table"`
	FromColumn      string `json:"from_column"`
	ToTable         string `json:"to_table"`
	ToColumn        string `json:"to_column"`
	FromCardinality string `json:"from_cardinality"`
	ToCardinality   string `json:"to_cardinality"`
	CrossFiltering  string `json:"cross_filtering_behavior"`
	IsActive        bool   `json:"is_active"`
}

// Key identifies a relationship by its endpoints. Cardinality and filtering
// are mutable definition fields, not part of the identity.
func (r RelationshipDef) Key() string {
	return fmt.Sprintf("%s[%s] -> %s[%s]", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
}

// MeasureDef is one measure of the semantic model
type MeasureDef struct {
	Name          string `json:"name"`
	Table         string `json:"table"`
	Expression    string `json:"expression"`
	FormatString  string `json:"format_string"`
	DisplayFolder string `json:"display_folder"`
}

// DesiredRelationships is the target relationship inventory: the event log
// joins to both dimensions many-to-one with single-direction filtering.
func DesiredRelationships() []RelationshipDef {
	return []RelationshipDef{
		{
			FromTable:       EventLogTable,
			FromColumn:      "date_stamp",
			ToTable:         DateDimTable,
			ToColumn:        "date_key",
			FromCardinality: "Many",
			ToCardinality:   "One",
			CrossFiltering:  "OneDirection",
			IsActive:        true,
		},
		{
			FromTable:       EventLogTable,
			FromColumn:      "time_stamp",
			ToTable:         TimeDimTable,
			ToColumn:        "time_key",
			FromCardinality: "Many",
			ToCardinality:   "One",
			CrossFiltering:  "OneDirection",
			IsActive:        true,
		},
	}
}

// DesiredMeasures is the target measure inventory over the event log
func DesiredMeasures() []MeasureDef {
	return []MeasureDef{
		{
			Name:          "Total Operations",
			Table:         EventLogTable,
			Expression:    "COUNTROWS(event_log)",
			FormatString:  "#,##0",
			DisplayFolder: "Core Metrics",
		},
		{
			Name:          "Total Rows Changed",
			Table:         EventLogTable,
			Expression:    "SUM(event_log[rows_changed])",
			FormatString:  "#,##0",
			DisplayFolder: "Core Metrics",
		},
		{
			Name:          "Average Execution Time",
			Table:         EventLogTable,
			Expression:    "AVERAGE(event_log[execution_time])",
			FormatString:  "#,##0.00 \"seconds\"",
			DisplayFolder: "Performance Metrics",
		},
		{
			Name:          "Error Count",
			Table:         EventLogTable,
			Expression:    "CALCULATE(COUNTROWS(event_log), NOT(ISBLANK(event_log[error_message])))",
			FormatString:  "#,##0",
			DisplayFolder: "Quality Metrics",
		},
		{
			Name:          "Success Rate",
			Table:         EventLogTable,
			Expression:    "DIVIDE(COUNTROWS(FILTER(event_log, ISBLANK(event_log[error_message]))), COUNTROWS(event_log), 0)",
			FormatString:  "0.0%",
			DisplayFolder: "Quality Metrics",
		},
		{
			Name:          "Operations Today",
			Table:         EventLogTable,
			Expression:    "CALCULATE(COUNTROWS(event_log), event_log[date_stamp] = FORMAT(TODAY(), \"YYYY-MM-DD\"))",
			FormatString:  "#,##0",
			DisplayFolder: "Time Intelligence",
		},
		{
			Name:          "Unique Tables",
			Table:         EventLogTable,
			Expression:    "DISTINCTCOUNT(event_log[table_name])",
			FormatString:  "#,##0",
			DisplayFolder: "Core Metrics",
		},
		{
			Name:          "Unique Notebooks",
			Table:         EventLogTable,
			Expression:    "DISTINCTCOUNT(event_log[notebook_name])",
			FormatString:  "#,##0",
			DisplayFolder: "Core Metrics",
		},
	}
}
