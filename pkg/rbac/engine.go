package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/opendesk-io/opendesk/pkg/audit"
	"github.com/opendesk-io/opendesk/pkg/observability"
)

// SnapshotSource resolves a user's authorization snapshot from the
// directory store. Implementations must return ErrUserNotFound for unknown
// users and wrap connectivity failures with StoreError.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, userID int64) (*Snapshot, error)
}

// SnapshotCache is the subset of the permission cache the engine consumes.
type SnapshotCache interface {
	GetUser(userID int64) (*Snapshot, bool)
	SetUser(userID int64, snap *Snapshot)
}

// Engine is the permission engine: it decides, for a user, action, and
// resource (optionally narrowed to a record), whether an operation is
// allowed, and computes the access scope list handlers filter by.
//
// The engine is stateless apart from the injected cache; every check is an
// independent, idempotent read.
type Engine struct {
	source  SnapshotSource
	cache   SnapshotCache
	auditor audit.Logger
	metrics *observability.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithCache attaches a snapshot cache
func WithCache(cache SnapshotCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithAuditLogger attaches an audit sink for decision records
func WithAuditLogger(logger audit.Logger) Option {
	return func(e *Engine) { e.auditor = logger }
}

// WithMetrics attaches permission-check metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a permission engine over the given snapshot source
func NewEngine(source SnapshotSource, opts ...Option) *Engine {
	e := &Engine{
		source:  source,
		auditor: audit.NopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// snapshot resolves the user's snapshot, consulting the cache first. An
// unknown user yields an ineligible snapshot (fail closed); store failures
// propagate unchanged so callers can distinguish "no" from "don't know".
func (e *Engine) snapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	if e.cache != nil {
		if snap, ok := e.cache.GetUser(userID); ok {
			return snap, nil
		}
	}

	snap, err := e.source.LoadSnapshot(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return &Snapshot{UserID: userID, Kind: RoleKindNone}, nil
	}
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.SetUser(userID, snap)
	}
	return snap, nil
}

// CheckPermission reports whether the user's role grants (action, resource)
// at the resource-type level. Users without an active role are denied for
// every pair. Record ownership is not considered here; use
// CheckRecordPermission for record-level narrowing.
func (e *Engine) CheckPermission(ctx context.Context, userID int64, action Action, resource Resource) (bool, error) {
	start := time.Now()

	snap, err := e.snapshot(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed := snap.Eligible() && snap.Grants.Allows(action, resource)
	reason := ReasonOK
	if !allowed {
		if !snap.Eligible() {
			reason = ReasonNoRole
		} else {
			reason = ReasonRoleLacksGrant
		}
		e.auditor.LogDecision(ctx, userID, string(resource), string(action),
			PermissionString(resource, action), false, string(reason))
	}

	e.observe(resource, action, allowed, reason, time.Since(start))
	return allowed, nil
}

// CheckRecordPermission performs the coarse check and then narrows by
// record ownership according to the user's role kind. A nil record reduces
// to the coarse check; callers use that to pre-flight UI affordances.
func (e *Engine) CheckRecordPermission(ctx context.Context, userID int64, action Action, resource Resource, record *RecordRef) (*Decision, error) {
	start := time.Now()
	required := PermissionString(resource, action)

	snap, err := e.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := e.decide(snap, action, resource, record, required)

	e.auditor.LogDecision(ctx, userID, string(resource), string(action),
		required, decision.Allowed, string(decision.Reason))
	e.observe(resource, action, decision.Allowed, decision.Reason, time.Since(start))
	return decision, nil
}

func (e *Engine) decide(snap *Snapshot, action Action, resource Resource, record *RecordRef, required string) *Decision {
	if !snap.Eligible() {
		return &Decision{Allowed: false, Reason: ReasonNoRole, RequiredPermission: required}
	}
	if !snap.Grants.Allows(action, resource) {
		return &Decision{Allowed: false, Reason: ReasonRoleLacksGrant, RequiredPermission: required}
	}
	if record == nil {
		return &Decision{Allowed: true, Reason: ReasonOK, RequiredPermission: required}
	}

	switch snap.Kind {
	case RoleKindAdmin:
		return &Decision{Allowed: true, Reason: ReasonOK, RequiredPermission: required}

	case RoleKindTeamLead:
		// The self-exception always applies: a lead acts on their own
		// records whatever team the record carries.
		if record.OwnedBy(snap.UserID) || record.SharedWith(snap.UserID) {
			return &Decision{Allowed: true, Reason: ReasonOK, RequiredPermission: required}
		}
		if record.TeamID != nil {
			for _, teamID := range snap.VisibleTeamIDs() {
				if teamID == *record.TeamID {
					return &Decision{Allowed: true, Reason: ReasonOK, RequiredPermission: required}
				}
			}
		}
		return &Decision{Allowed: false, Reason: ReasonTeamMismatch, RequiredPermission: required}

	default:
		if record.OwnedBy(snap.UserID) || record.SharedWith(snap.UserID) {
			return &Decision{Allowed: true, Reason: ReasonOK, RequiredPermission: required}
		}
		return &Decision{Allowed: false, Reason: ReasonRecordNotOwned, RequiredPermission: required}
	}
}

// GetUserPermissions computes the user's access scope. Ineligible users get
// SelfOnly; the result never silently widens.
func (e *Engine) GetUserPermissions(ctx context.Context, userID int64) (AccessScope, error) {
	snap, err := e.snapshot(ctx, userID)
	if err != nil {
		return AccessScope{}, err
	}
	return ScopeOf(snap), nil
}

// CanAccessTeamData reports whether the user may filter by the given team:
// organization-wide scope, membership of the scope's team set, or direct
// membership of the team itself.
func (e *Engine) CanAccessTeamData(ctx context.Context, userID, teamID int64) (bool, error) {
	scope, err := e.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return scope.AllowsTeam(teamID), nil
}

func (e *Engine) observe(resource Resource, action Action, allowed bool, reason Reason, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObservePermissionCheck(string(resource), string(action), allowed, string(reason), duration)
}
