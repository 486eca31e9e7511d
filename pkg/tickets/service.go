package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/opendesk-io/opendesk/pkg/httputil"
	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// Denial carries a denied authorization decision as an error. Handlers map
// it to the structured 403 body.
type Denial struct {
	Decision *rbac.Decision
}

func (d *Denial) Error() string {
	return fmt.Sprintf("permission denied: %s (%s)", d.Decision.RequiredPermission, d.Decision.Reason)
}

// AsDenial extracts a Denial from an error chain
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Service applies the permission engine to every ticket operation. List
// visibility flows through the scope predicate; single-record reads and
// writes go through the record-level check.
type Service struct {
	store   *Store
	engine  *rbac.Engine
	metrics *observability.Metrics
}

// NewService creates a ticket service
func NewService(store *Store, engine *rbac.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// WithMetrics attaches the scope conflict counter
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) observeScopeConflict() {
	if s.metrics != nil {
		s.metrics.ScopeConflictsTotal.Inc()
	}
}

// List returns the tickets visible to the user under their access scope,
// narrowed by the request filter. An explicit team filter outside the scope
// is rejected with a ScopeConflictError, never silently dropped.
func (s *Service) List(ctx context.Context, userID int64, f Filter, page httputil.Pagination) ([]*Ticket, error) {
	allowed, err := s.engine.CheckPermission(ctx, userID, rbac.ActionRead, rbac.ResourceTickets)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &Denial{Decision: &rbac.Decision{
			Reason:             rbac.ReasonRoleLacksGrant,
			RequiredPermission: rbac.PermissionString(rbac.ResourceTickets, rbac.ActionRead),
		}}
	}

	scope, err := s.engine.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	predicate, err := BuildPredicate(scope, f)
	if err != nil {
		if rbac.IsScopeConflict(err) {
			s.observeScopeConflict()
		}
		return nil, err
	}
	return s.store.List(ctx, predicate, page)
}

// Get fetches one ticket after a record-level permission check
func (s *Service) Get(ctx context.Context, userID, ticketID int64) (*Ticket, error) {
	ticket, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	decision, err := s.engine.CheckRecordPermission(ctx, userID, rbac.ActionRead, rbac.ResourceTickets, ticket.Ref())
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &Denial{Decision: decision}
	}
	return ticket, nil
}

// Create files a new ticket on the caller's behalf
func (s *Service) Create(ctx context.Context, userID int64, t *Ticket) (*Ticket, error) {
	allowed, err := s.engine.CheckPermission(ctx, userID, rbac.ActionCreate, rbac.ResourceTickets)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &Denial{Decision: &rbac.Decision{
			Reason:             rbac.ReasonRoleLacksGrant,
			RequiredPermission: rbac.PermissionString(rbac.ResourceTickets, rbac.ActionCreate),
		}}
	}

	t.PublicID = uuid.New().String()
	t.CreatedBy = userID
	if t.RequesterID == 0 {
		t.RequesterID = userID
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", t.Priority)
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update rewrites a ticket after a record-level permission check against
// the stored record, not the incoming payload.
func (s *Service) Update(ctx context.Context, userID, ticketID int64, update *Ticket) (*Ticket, error) {
	existing, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	decision, err := s.engine.CheckRecordPermission(ctx, userID, rbac.ActionUpdate, rbac.ResourceTickets, existing.Ref())
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &Denial{Decision: decision}
	}

	if !update.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", update.Status)
	}
	if !update.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", update.Priority)
	}

	existing.Subject = update.Subject
	existing.Body = update.Body
	existing.Status = update.Status
	existing.Priority = update.Priority
	existing.TeamID = update.TeamID
	existing.AssigneeID = update.AssigneeID
	existing.FollowerIDs = update.FollowerIDs

	if err := s.store.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}
