// pkg/lakelog/status.go
package lakelog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lakelog/pkg/model"
)

// TableStatus is the probed state of one monitoring table
type TableStatus struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
	Rows   int64  `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// DefinitionStatus reports whether one desired model definition is present
type DefinitionStatus struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

// StatusReport is a point-in-time health summary of the monitoring setup
type StatusReport struct {
	Lakehouse     string             `json:"lakehouse"`
	Backend       string             `json:"backend"`
	Ready         bool               `json:"ready"`
	Tables        []TableStatus      `json:"tables"`
	MaxDateKey    string             `json:"max_date_key,omitempty"`
	ModelExists   *bool              `json:"model_exists,omitempty"`
	Relationships []DefinitionStatus `json:"relationships,omitempty"`
	Measures      []DefinitionStatus `json:"measures,omitempty"`
}

// Status probes each monitoring table and, when a semantic service is
// configured, checks for the model. Probe failures are captured per table
// rather than aborting the report.
func (l *Logger) Status(ctx context.Context) StatusReport {
	report := StatusReport{
		Lakehouse: l.cfg.LakehouseName(),
		Backend:   string(l.cfg.Backend),
		Ready:     l.ready,
	}

	for _, loc := range l.locs.All() {
		ts := TableStatus{Table: loc.Qualified()}
		probe, err := l.store.Probe(ctx, loc)
		if err != nil {
			ts.Error = err.Error()
		} else {
			ts.Exists = probe.Exists
			ts.Rows = probe.RowCount
		}
		report.Tables = append(report.Tables, ts)
	}

	if maxKey, err := l.store.MaxKey(ctx, l.locs.DateDim, "date_key"); err == nil {
		report.MaxDateKey = maxKey
	}

	if l.semanticOK {
		modelName := "SM_" + l.cfg.ProjectName + "_Monitoring"
		if l.cfg.Semantic != nil && l.cfg.Semantic.ModelName != "" {
			modelName = l.cfg.Semantic.ModelName
		}
		exists, err := l.svc.ModelExists(ctx, modelName)
		if err != nil {
			l.logger.Debug("Model existence check failed", zap.Error(err))
		} else {
			report.ModelExists = &exists
			if exists {
				report.Relationships = l.relationshipStatus(ctx, modelName)
				report.Measures = l.measureStatus(ctx, modelName)
			}
		}
	}

	return report
}

// relationshipStatus diffs the model's relationship inventory against the
// desired set. A failed list leaves the section empty rather than guessing.
func (l *Logger) relationshipStatus(ctx context.Context, modelName string) []DefinitionStatus {
	listed, err := l.svc.ListRelationships(ctx, modelName)
	if err != nil {
		l.logger.Debug("Relationship inventory unavailable", zap.Error(err))
		return nil
	}

	existing := make(map[string]bool, len(listed))
	for _, rel := range listed {
		existing[rel.Key()] = true
	}

	desired := model.DesiredRelationships()
	statuses := make([]DefinitionStatus, 0, len(desired))
	for _, rel := range desired {
		statuses = append(statuses, DefinitionStatus{
			Name:    rel.Key(),
			Present: existing[rel.Key()],
		})
	}
	return statuses
}

// measureStatus diffs the model's measure inventory against the desired set
func (l *Logger) measureStatus(ctx context.Context, modelName string) []DefinitionStatus {
	listed, err := l.svc.ListMeasures(ctx, modelName)
	if err != nil {
		l.logger.Debug("Measure inventory unavailable", zap.Error(err))
		return nil
	}

	existing := make(map[string]bool, len(listed))
	for _, m := range listed {
		existing[m.Name] = true
	}

	desired := model.DesiredMeasures()
	statuses := make([]DefinitionStatus, 0, len(desired))
	for _, m := range desired {
		statuses = append(statuses, DefinitionStatus{
			Name:    m.Name,
			Present: existing[m.Name],
		})
	}
	return statuses
}

// CoverageDays reports how many days of forward date-dimension coverage
// remain from today
func (l *Logger) CoverageDays(ctx context.Context) (int, error) {
	maxKey, err := l.store.MaxKey(ctx, l.locs.DateDim, "date_key")
	if err != nil {
		return 0, err
	}
	maxDate, err := time.Parse(model.DateKeyFormat, maxKey)
	if err != nil {
		return 0, err
	}
	days := int(maxDate.Sub(l.now()).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}
