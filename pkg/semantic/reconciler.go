// pkg/semantic/reconciler.go
package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lakelog/pkg/model"
)

// ItemAction describes what happened to one relationship or measure
type ItemAction int

const (
	// ItemCreated means the item was absent and was created
	ItemCreated ItemAction = iota
	// ItemUpdated means the item existed and its definition was reapplied
	ItemUpdated
	// ItemFailed means the create or update failed; processing continued
	ItemFailed
)

// String returns a string representation of the item action
func (a ItemAction) String() string {
	switch a {
	case ItemCreated:
		return "created"
	case ItemUpdated:
		return "updated"
	case ItemFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// ItemOutcome is the explicit per-item result of a reconciliation pass
type ItemOutcome struct {
	Kind   string // "relationship" or "measure"
	Name   string
	Action ItemAction
	Err    error
}

// Outcome summarizes one sub-protocol (relationships or measures)
type Outcome struct {
	Items          []ItemOutcome
	Created        int
	Updated        int
	Failed         int
	ShortCircuited bool
	// Instructions holds manual-creation steps when no write succeeded
	Instructions string
}

// Succeeded reports whether the pass achieved its goal: either the desired
// state was already confirmed present, or at least one create/update landed.
func (o Outcome) Succeeded() bool {
	return o.ShortCircuited || o.Created+o.Updated > 0
}

func (o *Outcome) record(kind, name string, action ItemAction, err error) {
	o.Items = append(o.Items, ItemOutcome{Kind: kind, Name: name, Action: action, Err: err})
	switch action {
	case ItemCreated:
		o.Created++
	case ItemUpdated:
		o.Updated++
	case ItemFailed:
		o.Failed++
	}
}

// Result is the combined outcome of a full reconciliation call
type Result struct {
	ModelCreated  bool
	Relationships Outcome
	Measures      Outcome
	Refreshed     bool
}

// Succeeded reports whether both sub-protocols achieved their goal
func (r *Result) Succeeded() bool {
	return r.Relationships.Succeeded() && r.Measures.Succeeded()
}

// Reconciler diffs the semantic model's relationship and measure inventories
// against the desired target set and applies only the delta. Individual
// create/update failures never abort the remaining items, and running the
// reconciliation twice with no external change is a no-op the second time.
type Reconciler struct {
	svc       Service
	tokens    TokenProvider
	logger    *zap.Logger
	modelName string
	scope     string
	tables    []string
	sleep     func(time.Duration)
}

// NewReconciler creates a reconciler for the named model
func NewReconciler(svc Service, tokens TokenProvider, modelName, scope string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		svc:       svc,
		tokens:    tokens,
		logger:    logger.Named("reconciler"),
		modelName: modelName,
		scope:     scope,
		tables:    []string{model.EventLogTable, model.DateDimTable, model.TimeDimTable},
		sleep:     time.Sleep,
	}
}

// WithSleep overrides the settle-delay sleep, used by tests
func (r *Reconciler) WithSleep(sleep func(time.Duration)) *Reconciler {
	r.sleep = sleep
	return r
}

// Reconcile is the idempotent create-or-update entry point: it creates the
// model when absent, then brings relationships and measures to the desired
// state and attempts a refresh. Refresh failure is advisory.
func (r *Reconciler) Reconcile(ctx context.Context) *Result {
	result := &Result{}

	exists, err := r.svc.ModelExists(ctx, r.modelName)
	if err != nil {
		// unknown is not "absent with certainty", but creating with
		// overwrite=false semantics on the service side is safe
		r.logger.Warn("Could not check for existing semantic model", zap.Error(err))
	}

	if !exists {
		r.logger.Info("Creating semantic model",
			zap.String("model", r.modelName),
			zap.Strings("tables", r.tables))

		// give freshly written tables a moment to commit before the
		// service scans them
		r.sleep(3 * time.Second)

		if err := r.svc.CreateModel(ctx, r.modelName, r.tables); err != nil {
			r.logger.Error("Semantic model creation failed", zap.Error(err))
			result.Relationships.Instructions = RelationshipInstructions()
			result.Measures.Instructions = MeasureInstructions()
			return result
		}
		result.ModelCreated = true
		r.sleep(2 * time.Second)
	}

	result.Relationships = r.ReconcileRelationships(ctx)
	result.Measures = r.ReconcileMeasures(ctx)

	token, err := r.tokens.Token(ctx, r.scope)
	if err != nil {
		r.logger.Warn("Skipping refresh, no token", zap.Error(err))
		return result
	}
	if err := r.svc.Refresh(ctx, r.modelName, token); err != nil {
		r.logger.Warn("Refresh failed, model needs a manual refresh", zap.Error(err))
	} else {
		result.Refreshed = true
		r.logger.Info("Semantic model refreshed", zap.String("model", r.modelName))
	}

	return result
}

// ReconcileRelationships brings the relationship inventory to the desired
// state. When nothing is missing and at least one relationship is confirmed
// present, it short-circuits without opening a write session.
func (r *Reconciler) ReconcileRelationships(ctx context.Context) Outcome {
	var outcome Outcome
	desired := model.DesiredRelationships()

	existing := make(map[string]bool)
	inventoryKnown := true
	listed, err := r.svc.ListRelationships(ctx, r.modelName)
	if err != nil {
		// unknown, not empty: proceed optimistically to the apply step
		r.logger.Warn("Could not list relationships, proceeding with writes", zap.Error(err))
		inventoryKnown = false
	} else {
		for _, rel := range listed {
			existing[rel.Key()] = true
		}
	}

	missing := 0
	present := 0
	for _, rel := range desired {
		if existing[rel.Key()] {
			present++
		} else {
			missing++
		}
	}

	if inventoryKnown && missing == 0 && present > 0 {
		r.logger.Info("All relationships exist",
			zap.String("model", r.modelName),
			zap.Int("count", present))
		outcome.ShortCircuited = true
		return outcome
	}

	session, ok := r.openSession(ctx, &outcome, RelationshipInstructions)
	if !ok {
		return outcome
	}
	defer session.Close(ctx)

	for _, rel := range desired {
		key := rel.Key()
		if existing[key] {
			if err := session.UpdateRelationship(ctx, rel); err != nil {
				r.logger.Warn("Failed to update relationship", zap.String("relationship", key), zap.Error(err))
				outcome.record("relationship", key, ItemFailed, err)
				continue
			}
			r.logger.Info("Updated relationship", zap.String("relationship", key))
			outcome.record("relationship", key, ItemUpdated, nil)
		} else {
			if err := session.CreateRelationship(ctx, rel); err != nil {
				r.logger.Warn("Failed to create relationship", zap.String("relationship", key), zap.Error(err))
				outcome.record("relationship", key, ItemFailed, err)
				continue
			}
			r.logger.Info("Created relationship", zap.String("relationship", key))
			outcome.record("relationship", key, ItemCreated, nil)
		}
	}

	if outcome.Created+outcome.Updated == 0 {
		outcome.Instructions = RelationshipInstructions()
	}

	r.logger.Info("Relationship reconciliation summary",
		zap.Int("created", outcome.Created),
		zap.Int("updated", outcome.Updated),
		zap.Int("failed", outcome.Failed))
	return outcome
}

// ReconcileMeasures brings the measure inventory to the desired state.
// Existing measures are always updated in place with the latest definition;
// reapplying an identical definition is safe.
func (r *Reconciler) ReconcileMeasures(ctx context.Context) Outcome {
	var outcome Outcome
	desired := model.DesiredMeasures()

	existing := make(map[string]bool)
	listed, err := r.svc.ListMeasures(ctx, r.modelName)
	if err != nil {
		r.logger.Warn("Could not list measures, proceeding with writes", zap.Error(err))
	} else {
		for _, m := range listed {
			existing[m.Name] = true
		}
	}

	session, ok := r.openSession(ctx, &outcome, MeasureInstructions)
	if !ok {
		return outcome
	}
	defer session.Close(ctx)

	for _, m := range desired {
		if existing[m.Name] {
			if err := session.UpdateMeasure(ctx, m); err != nil {
				r.logger.Warn("Failed to update measure", zap.String("measure", m.Name), zap.Error(err))
				outcome.record("measure", m.Name, ItemFailed, err)
				continue
			}
			r.logger.Info("Updated measure", zap.String("measure", m.Name))
			outcome.record("measure", m.Name, ItemUpdated, nil)
		} else {
			if err := session.CreateMeasure(ctx, m); err != nil {
				r.logger.Warn("Failed to create measure", zap.String("measure", m.Name), zap.Error(err))
				outcome.record("measure", m.Name, ItemFailed, err)
				continue
			}
			r.logger.Info("Created measure", zap.String("measure", m.Name))
			outcome.record("measure", m.Name, ItemCreated, nil)
		}
	}

	if outcome.Created+outcome.Updated == 0 {
		outcome.Instructions = MeasureInstructions()
	}

	r.logger.Info("Measure reconciliation summary",
		zap.Int("created", outcome.Created),
		zap.Int("updated", outcome.Updated),
		zap.Int("failed", outcome.Failed))
	return outcome
}

// openSession acquires a fresh token and opens the write session. On auth
// or open failure the outcome gets the manual fallback instructions and
// false is returned.
func (r *Reconciler) openSession(ctx context.Context, outcome *Outcome, instructions func() string) (Session, bool) {
	token, err := r.tokens.Token(ctx, r.scope)
	if err != nil {
		r.logger.Warn("Token retrieval failed, falling back to manual instructions", zap.Error(err))
		outcome.Instructions = instructions()
		return nil, false
	}

	session, err := r.svc.OpenSession(ctx, r.modelName, token)
	if err != nil {
		r.logger.Warn("Could not open write session, falling back to manual instructions", zap.Error(err))
		outcome.Instructions = instructions()
		return nil, false
	}

	return session, true
}

// RelationshipInstructions returns the manual steps for creating the
// desired relationships in the BI tool
func RelationshipInstructions() string {
	var sb strings.Builder
	sb.WriteString("Create these relationships manually:\n")
	for _, rel := range model.DesiredRelationships() {
		fmt.Fprintf(&sb, "  %s\n", rel.Key())
	}
	return sb.String()
}

// MeasureInstructions returns the manual steps for creating the desired
// measures in the BI tool
func MeasureInstructions() string {
	var sb strings.Builder
	sb.WriteString("Create these measures manually:\n")
	for _, m := range model.DesiredMeasures() {
		fmt.Fprintf(&sb, "  %s = %s\n", m.Name, m.Expression)
	}
	return sb.String()
}
