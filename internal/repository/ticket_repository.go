package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// ErrVersionConflict reports a lost optimistic-concurrency race: the row
// moved on since the caller read it. Retryable after a fresh read.
var ErrVersionConflict = errors.New("ticket modified concurrently")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	SubmitterID    *string
	InvolvedUserID *string
	Statuses       []domain.TicketStatus
	Categories     []domain.TicketCategory
	Priorities     []domain.TicketPriority
	SearchTerm     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence.
//
// CreateWithHistory and ApplyTransition are the only writers that touch
// status; each couples the ticket mutation with its audit entry in one
// transaction so neither can land without the other.
type TicketRepository interface {
	CreateWithHistory(ctx context.Context, ticket *domain.Ticket, entry *domain.StatusHistoryEntry) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ApplyTransition(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.StatusHistoryEntry) error
	UpdateAssignments(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, category, priority, title, description, status,
               submitter_id, process_owner_id, assigned_developer_id, assigned_qa_id,
               cancelled_by_id, cancellation_reason, version,
               created_at, updated_at, submitted_at, cancelled_at, deployed_at`

func (r *ticketRepository) CreateWithHistory(ctx context.Context, ticket *domain.Ticket, entry *domain.StatusHistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Atomic per-month counter: the upsert increments under row lock, so
	// concurrent creations in the same month never observe the same value.
	const seqQuery = `
        INSERT INTO ticket_sequences (year_month, last_value)
        VALUES ($1, 1)
        ON CONFLICT (year_month) DO UPDATE SET last_value = ticket_sequences.last_value + 1
        RETURNING last_value`
	var seq int64
	if err := tx.QueryRow(ctx, seqQuery, domain.YearMonthKey(ticket.CreatedAt)).Scan(&seq); err != nil {
		return fmt.Errorf("allocate ticket number: %w", err)
	}
	ticket.TicketNumber = domain.FormatTicketNumber(ticket.CreatedAt, seq)

	const insertQuery = `
        INSERT INTO tickets (ticket_number, category, priority, title, description, status,
                             submitter_id, process_owner_id, assigned_developer_id, assigned_qa_id,
                             version, created_at, updated_at, submitted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id`
	if err := tx.QueryRow(ctx, insertQuery,
		ticket.TicketNumber,
		ticket.Category,
		ticket.Priority,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.SubmitterID,
		ticket.ProcessOwnerID,
		ticket.AssignedDeveloperID,
		ticket.AssignedQaID,
		ticket.Version,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.SubmittedAt,
	).Scan(&ticket.ID); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	entry.TicketID = ticket.ID
	if err := insertHistoryTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ApplyTransition commits one state change plus its audit entry. The
// version guard rejects the write when another transition landed since the
// caller's read; tickets are never deleted, so zero affected rows always
// means a version race.
func (r *ticketRepository) ApplyTransition(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.StatusHistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE tickets
        SET status=$1, process_owner_id=$2, cancelled_by_id=$3, cancellation_reason=$4,
            submitted_at=$5, cancelled_at=$6, deployed_at=$7, version=$8, updated_at=$9
        WHERE id=$10 AND version=$11
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.Status,
		ticket.ProcessOwnerID,
		ticket.CancelledByID,
		ticket.CancellationReason,
		ticket.SubmittedAt,
		ticket.CancelledAt,
		ticket.DeployedAt,
		ticket.Version,
		ticket.UpdatedAt,
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return err
	}

	if err := insertHistoryTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateAssignments persists the developer/QA assignment fields under the
// same version guard as transitions; assignments are side mutations and
// append no history entry.
func (r *ticketRepository) UpdateAssignments(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	const query = `
        UPDATE tickets
        SET assigned_developer_id=$1, assigned_qa_id=$2, version=$3, updated_at=$4
        WHERE id=$5 AND version=$6
        RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.AssignedDeveloperID,
		ticket.AssignedQaID,
		ticket.Version,
		ticket.UpdatedAt,
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SubmitterID != nil {
		args = append(args, *filter.SubmitterID)
		clauses = append(clauses, fmt.Sprintf("submitter_id=$%d", len(args)))
	}
	if filter.InvolvedUserID != nil {
		args = append(args, *filter.InvolvedUserID)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(submitter_id=%s OR process_owner_id=%s OR assigned_developer_id=%s OR assigned_qa_id=%s)",
			placeholder, placeholder, placeholder, placeholder))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, priority := range filter.Priorities {
			args = append(args, priority)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func insertHistoryTx(ctx context.Context, tx pgx.Tx, entry *domain.StatusHistoryEntry) error {
	const query = `
        INSERT INTO ticket_status_history (ticket_id, from_status, to_status, actor_id, reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	if err := tx.QueryRow(ctx, query,
		entry.TicketID,
		entry.FromStatus,
		entry.ToStatus,
		entry.ActorID,
		entry.Reason,
		entry.CreatedAt,
	).Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

type ticketScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row ticketScanner, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.SubmitterID,
		&ticket.ProcessOwnerID,
		&ticket.AssignedDeveloperID,
		&ticket.AssignedQaID,
		&ticket.CancelledByID,
		&ticket.CancellationReason,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.SubmittedAt,
		&ticket.CancelledAt,
		&ticket.DeployedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
