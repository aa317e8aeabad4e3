// pkg/semantic/reconciler_test.go
package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lakelog/pkg/model"
)

// fakeService is an in-memory semantic engine with programmable failures
type fakeService struct {
	modelPresent  bool
	relationships map[string]model.RelationshipDef
	measures      map[string]model.MeasureDef

	existsErr  error
	createErr  error
	listRelErr error
	listMeaErr error
	openErr    error
	refreshErr error

	refreshed    bool
	sessionsOpen int
}

func newFakeService() *fakeService {
	return &fakeService{
		relationships: make(map[string]model.RelationshipDef),
		measures:      make(map[string]model.MeasureDef),
	}
}

func (f *fakeService) ModelExists(context.Context, string) (bool, error) {
	return f.modelPresent, f.existsErr
}

func (f *fakeService) CreateModel(_ context.Context, _ string, tables []string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.modelPresent = true
	return nil
}

func (f *fakeService) ListRelationships(context.Context, string) ([]model.RelationshipDef, error) {
	if f.listRelErr != nil {
		return nil, f.listRelErr
	}
	out := make([]model.RelationshipDef, 0, len(f.relationships))
	for _, r := range f.relationships {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeService) ListMeasures(context.Context, string) ([]model.MeasureDef, error) {
	if f.listMeaErr != nil {
		return nil, f.listMeaErr
	}
	out := make([]model.MeasureDef, 0, len(f.measures))
	for _, m := range f.measures {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeService) OpenSession(context.Context, string, string) (Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.sessionsOpen++
	return &fakeSession{svc: f}, nil
}

func (f *fakeService) Refresh(context.Context, string, string) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshed = true
	return nil
}

type fakeSession struct {
	svc       *fakeService
	failNames map[string]bool
	closed    bool
}

func (s *fakeSession) CreateRelationship(_ context.Context, def model.RelationshipDef) error {
	if s.failNames[def.Key()] {
		return errors.New("write rejected")
	}
	s.svc.relationships[def.Key()] = def
	return nil
}

func (s *fakeSession) UpdateRelationship(_ context.Context, def model.RelationshipDef) error {
	if s.failNames[def.Key()] {
		return errors.New("write rejected")
	}
	s.svc.relationships[def.Key()] = def
	return nil
}

func (s *fakeSession) CreateMeasure(_ context.Context, def model.MeasureDef) error {
	if s.failNames[def.Name] {
		return errors.New("write rejected")
	}
	s.svc.measures[def.Name] = def
	return nil
}

func (s *fakeSession) UpdateMeasure(_ context.Context, def model.MeasureDef) error {
	if s.failNames[def.Name] {
		return errors.New("write rejected")
	}
	s.svc.measures[def.Name] = def
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	s.svc.sessionsOpen--
	return nil
}

func newTestReconciler(t *testing.T, svc Service) *Reconciler {
	t.Helper()
	return NewReconciler(svc, StaticTokenProvider{Value: "tok"}, "SM_Test_Monitoring", "storage", zaptest.NewLogger(t)).
		WithSleep(func(time.Duration) {})
}

func TestReconcileFromScratch(t *testing.T) {
	svc := newFakeService()
	r := newTestReconciler(t, svc)

	result := r.Reconcile(context.Background())

	assert.True(t, result.ModelCreated)
	assert.True(t, result.Succeeded())
	assert.True(t, result.Refreshed)
	assert.Equal(t, 2, result.Relationships.Created)
	assert.Equal(t, 8, result.Measures.Created)
	assert.Len(t, svc.relationships, 2)
	assert.Len(t, svc.measures, 8)
	assert.Zero(t, svc.sessionsOpen, "every session must be closed")
}

func TestReconcileSecondRunShortCircuitsRelationships(t *testing.T) {
	svc := newFakeService()
	r := newTestReconciler(t, svc)

	r.Reconcile(context.Background())
	result := r.Reconcile(context.Background())

	assert.False(t, result.ModelCreated)
	assert.True(t, result.Relationships.ShortCircuited)
	assert.Zero(t, result.Relationships.Created)

	// measures are always reapplied, never short-circuited
	assert.False(t, result.Measures.ShortCircuited)
	assert.Equal(t, 8, result.Measures.Updated)
	assert.True(t, result.Succeeded())
}

func TestReconcileRelationshipsPartialInventory(t *testing.T) {
	svc := newFakeService()
	svc.modelPresent = true
	first := model.DesiredRelationships()[0]
	svc.relationships[first.Key()] = first

	r := newTestReconciler(t, svc)
	outcome := r.ReconcileRelationships(context.Background())

	assert.False(t, outcome.ShortCircuited)
	assert.Equal(t, 1, outcome.Created)
	assert.Equal(t, 1, outcome.Updated)
	assert.Len(t, svc.relationships, 2)
}

func TestReconcileListFailureProceedsWithCreates(t *testing.T) {
	svc := newFakeService()
	svc.modelPresent = true
	svc.listRelErr = errors.New("service timeout")

	r := newTestReconciler(t, svc)
	outcome := r.ReconcileRelationships(context.Background())

	// unknown inventory is treated as empty for the apply step
	assert.False(t, outcome.ShortCircuited)
	assert.Equal(t, 2, outcome.Created)
	assert.True(t, outcome.Succeeded())
}

func TestReconcileTokenFailureYieldsInstructions(t *testing.T) {
	svc := newFakeService()
	svc.modelPresent = true

	r := NewReconciler(svc, StaticTokenProvider{}, "SM_Test_Monitoring", "storage", zaptest.NewLogger(t)).
		WithSleep(func(time.Duration) {})

	outcome := r.ReconcileRelationships(context.Background())
	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.Instructions, "event_log[date_stamp] -> dim_date[date_key]")

	outcome = r.ReconcileMeasures(context.Background())
	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.Instructions, "Total Operations")
	assert.Zero(t, svc.sessionsOpen)
}

func TestReconcileOpenSessionFailureYieldsInstructions(t *testing.T) {
	svc := newFakeService()
	svc.modelPresent = true
	svc.openErr = errors.New("forbidden")

	r := newTestReconciler(t, svc)
	outcome := r.ReconcileRelationships(context.Background())

	assert.False(t, outcome.Succeeded())
	assert.NotEmpty(t, outcome.Instructions)
}

func TestReconcileItemFailureContinues(t *testing.T) {
	svc := newFakeService()
	svc.modelPresent = true

	failing := model.DesiredMeasures()[0].Name
	svc.openErr = nil
	r := NewReconciler(&failingWriteService{fakeService: svc, failName: failing},
		StaticTokenProvider{Value: "tok"}, "SM_Test_Monitoring", "storage", zaptest.NewLogger(t)).
		WithSleep(func(time.Duration) {})

	outcome := r.ReconcileMeasures(context.Background())

	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 7, outcome.Created)
	assert.True(t, outcome.Succeeded())
	require.Len(t, outcome.Items, 8)
}

// failingWriteService opens sessions that reject one named item
type failingWriteService struct {
	*fakeService
	failName string
}

func (f *failingWriteService) OpenSession(ctx context.Context, name, token string) (Session, error) {
	s, err := f.fakeService.OpenSession(ctx, name, token)
	if err != nil {
		return nil, err
	}
	fs := s.(*fakeSession)
	fs.failNames = map[string]bool{f.failName: true}
	return fs, nil
}

func TestReconcileModelCreateFailure(t *testing.T) {
	svc := newFakeService()
	svc.createErr = errors.New("capacity paused")

	r := newTestReconciler(t, svc)
	result := r.Reconcile(context.Background())

	assert.False(t, result.ModelCreated)
	assert.False(t, result.Succeeded())
	assert.NotEmpty(t, result.Relationships.Instructions)
	assert.NotEmpty(t, result.Measures.Instructions)
}

func TestReconcileRefreshFailureIsAdvisory(t *testing.T) {
	svc := newFakeService()
	svc.refreshErr = errors.New("refresh queue full")

	r := newTestReconciler(t, svc)
	result := r.Reconcile(context.Background())

	assert.False(t, result.Refreshed)
	assert.True(t, result.Succeeded(), "refresh failure must not fail reconciliation")
}
