// pkg/semantic/service.go
package semantic

import (
	"context"

	"lakelog/pkg/model"
)

// Service is the read side of the semantic-model engine plus the entry point
// for authenticated write sessions.
type Service interface {
	// ModelExists reports whether the named model exists in the workspace
	ModelExists(ctx context.Context, name string) (bool, error)

	// CreateModel generates the model over the given lakehouse tables
	CreateModel(ctx context.Context, name string, tables []string) error

	// ListRelationships returns the model's current relationship inventory
	ListRelationships(ctx context.Context, name string) ([]model.RelationshipDef, error)

	// ListMeasures returns the model's current measure inventory
	ListMeasures(ctx context.Context, name string) ([]model.MeasureDef, error)

	// OpenSession opens an authenticated write session against the model.
	// The session is a scoped resource and must be closed on every exit path.
	OpenSession(ctx context.Context, name, token string) (Session, error)

	// Refresh triggers a model refresh
	Refresh(ctx context.Context, name, token string) error
}

// Session is an authenticated write session against one model
type Session interface {
	CreateRelationship(ctx context.Context, def model.RelationshipDef) error
	UpdateRelationship(ctx context.Context, def model.RelationshipDef) error
	CreateMeasure(ctx context.Context, def model.MeasureDef) error
	UpdateMeasure(ctx context.Context, def model.MeasureDef) error
	Close(ctx context.Context) error
}
