package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// StatusHistoryRepository reads the append-only status trail. Writes go
// through TicketRepository so the entry always commits with its transition.
type StatusHistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error)
}

type statusHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewStatusHistoryRepository instantiates the repository.
func NewStatusHistoryRepository(pool *pgxpool.Pool) StatusHistoryRepository {
	return &statusHistoryRepository{pool: pool}
}

func (r *statusHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, from_status, to_status, actor_id, reason, created_at
        FROM ticket_status_history
        WHERE ticket_id=$1
        ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.ActorID,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
