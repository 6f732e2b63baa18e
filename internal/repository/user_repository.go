package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// UserRepository encapsulates user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.UserAccount) error
	Update(ctx context.Context, user *domain.UserAccount) error
	GetByID(ctx context.Context, id string) (*domain.UserAccount, error)
	GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates the repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, display_name, password_hash, role,
               department_head, office_head, group_director, active, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.UserAccount) error {
	const query = `
        INSERT INTO user_accounts (username, email, display_name, password_hash, role,
                                   department_head, office_head, group_director, active,
                                   created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		strings.ToLower(user.Username),
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Role,
		user.DepartmentHead,
		user.OfficeHead,
		user.GroupDirector,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
}

func (r *userRepository) Update(ctx context.Context, user *domain.UserAccount) error {
	const query = `
        UPDATE user_accounts
        SET email=$1, display_name=$2, password_hash=$3, role=$4,
            department_head=$5, office_head=$6, group_director=$7, active=$8, updated_at=$9
        WHERE id=$10`
	_, err := r.pool.Exec(ctx, query,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Role,
		user.DepartmentHead,
		user.OfficeHead,
		user.GroupDirector,
		user.Active,
		user.UpdatedAt,
		user.ID,
	)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM user_accounts WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM user_accounts WHERE username=$1`
	return r.fetchSingle(ctx, query, strings.ToLower(username))
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.UserAccount, error) {
	var user domain.UserAccount
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.DepartmentHead,
		&user.OfficeHead,
		&user.GroupDirector,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
