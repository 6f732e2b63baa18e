package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// CommentRepository encapsulates ticket comment persistence.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository instantiates the repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

// Create inserts the comment and its attachment rows in one transaction.
func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const commentQuery = `
        INSERT INTO ticket_comments (ticket_id, author_id, body, internal, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	if err := tx.QueryRow(ctx, commentQuery,
		comment.TicketID,
		comment.AuthorID,
		comment.Body,
		comment.Internal,
		comment.CreatedAt,
	).Scan(&comment.ID); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	const attachmentQuery = `
        INSERT INTO comment_attachments (comment_id, storage_key, file_name, mime_type, size_bytes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	for i := range comment.Attachments {
		att := &comment.Attachments[i]
		att.CommentID = comment.ID
		att.CreatedAt = comment.CreatedAt
		if err := tx.QueryRow(ctx, attachmentQuery,
			att.CommentID,
			att.StorageKey,
			att.FileName,
			att.MimeType,
			att.SizeBytes,
			att.CreatedAt,
		).Scan(&att.ID); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	query := `
        SELECT id, ticket_id, author_id, body, internal, created_at
        FROM ticket_comments
        WHERE ticket_id=$1`
	if !includeInternal {
		query += ` AND internal=FALSE`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.TicketID,
			&comment.AuthorID,
			&comment.Body,
			&comment.Internal,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range comments {
		attachments, err := r.listAttachments(ctx, comments[i].ID)
		if err != nil {
			return nil, err
		}
		comments[i].Attachments = attachments
	}
	return comments, nil
}

func (r *commentRepository) listAttachments(ctx context.Context, commentID string) ([]domain.CommentAttachment, error) {
	const query = `
        SELECT id, comment_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM comment_attachments
        WHERE comment_id=$1
        ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, commentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []domain.CommentAttachment
	for rows.Next() {
		var att domain.CommentAttachment
		if err := rows.Scan(&att.ID, &att.CommentID, &att.StorageKey, &att.FileName, &att.MimeType, &att.SizeBytes, &att.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}
