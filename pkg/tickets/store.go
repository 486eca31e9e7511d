package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/opendesk-io/opendesk/pkg/httputil"
	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// ErrTicketNotFound is returned for missing ticket IDs
var ErrTicketNotFound = errors.New("ticket not found")

// Store persists tickets in Postgres
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewStore creates a ticket store over an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithMetrics attaches store operation counters
func (s *Store) WithMetrics(m *observability.Metrics) *Store {
	s.metrics = m
	return s
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.StoreOperationsTotal.WithLabelValues(op, outcome).Inc()
	s.metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

const ticketColumns = `id, public_id, subject, body, status, priority, team_id,
	requester_id, created_by, assignee_id, follower_ids, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (*Ticket, error) {
	var t Ticket
	var followers pq.Int64Array
	err := row.Scan(&t.ID, &t.PublicID, &t.Subject, &t.Body, &t.Status, &t.Priority,
		&t.TeamID, &t.RequesterID, &t.CreatedBy, &t.AssigneeID, &followers,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.FollowerIDs = []int64(followers)
	return &t, nil
}

// Get fetches a ticket by ID
func (s *Store) Get(ctx context.Context, id int64) (ticket *Ticket, err error) {
	defer func(start time.Time) { s.observe("get_ticket", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	ticket, err = scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, rbac.StoreError("get ticket", err)
	}
	return ticket, nil
}

// List returns tickets matching the predicate, newest first. The predicate
// comes from BuildPredicate, so the caller's access scope is always part of
// the query.
func (s *Store) List(ctx context.Context, p Predicate, page httputil.Pagination) (out []*Ticket, err error) {
	defer func(start time.Time) { s.observe("list_tickets", start, err) }(time.Now())

	args := append(p.Args(), page.Limit, page.Offset)
	query := fmt.Sprintf(
		`SELECT `+ticketColumns+` FROM tickets WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		p.SQL(), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rbac.StoreError("list tickets", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, rbac.StoreError("scan ticket", err)
		}
		out = append(out, t)
	}
	if err = rows.Err(); err != nil {
		return nil, rbac.StoreError("list tickets", err)
	}
	return out, nil
}

// Create inserts a ticket and fills its generated fields
func (s *Store) Create(ctx context.Context, t *Ticket) (err error) {
	defer func(start time.Time) { s.observe("create_ticket", start, err) }(time.Now())

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO tickets
		   (public_id, subject, body, status, priority, team_id, requester_id, created_by, assignee_id, follower_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		t.PublicID, t.Subject, t.Body, t.Status, t.Priority, t.TeamID,
		t.RequesterID, t.CreatedBy, t.AssigneeID, pq.Array(t.FollowerIDs),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return rbac.StoreError("create ticket", err)
	}
	return nil
}

// Update rewrites the mutable ticket fields
func (s *Store) Update(ctx context.Context, t *Ticket) (err error) {
	defer func(start time.Time) { s.observe("update_ticket", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET subject = $1, body = $2, status = $3, priority = $4,
		   team_id = $5, assignee_id = $6, follower_ids = $7, updated_at = NOW()
		 WHERE id = $8`,
		t.Subject, t.Body, t.Status, t.Priority, t.TeamID, t.AssigneeID,
		pq.Array(t.FollowerIDs), t.ID)
	if err != nil {
		return rbac.StoreError("update ticket", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rbac.StoreError("update ticket", err)
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}
