package repository

import (
	"context"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByLogin(ctx context.Context, login string, kind domain.UserKind) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.User, error)
	SetProfileComplete(ctx context.Context, id string, complete bool) error
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	AssignOrganization(ctx context.Context, employeeID, organizationID string, name, email *string) (*domain.User, error)
	Balance(ctx context.Context, id string) (decimal.Decimal, error)
	CountEmployees(ctx context.Context, organizationID string) (int, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `uuid, user_type, phone_number, login, password_hash, name, email, avatar_url, goal, payment_goal, organization_id, stripe_customer_id, balance, is_profile_complete, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Kind, &u.Phone, &u.Login, &u.PasswordHash, &u.Name, &u.Email,
		&u.AvatarURL, &u.Goal, &u.PaymentGoal, &u.OrganizationID, &u.StripeCustomerID,
		&u.Balance, &u.IsProfileComplete, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `
		INSERT INTO users (uuid, user_type, phone_number, login, password_hash, name, email, organization_id, is_profile_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	return scanUser(r.pool.QueryRow(ctx, q,
		u.ID, u.Kind, u.Phone, u.Login, u.PasswordHash, u.Name, u.Email, u.OrganizationID, u.IsProfileComplete,
	))
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	// uuid column; junk ids from URLs fail closed instead of erroring.
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	const q = `SELECT ` + userCols + ` FROM users WHERE uuid = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone_number = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) FindByLogin(ctx context.Context, login string, kind domain.UserKind) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE login = $1 AND user_type = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, login, kind))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	const q = `
		UPDATE users
		SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			avatar_url = COALESCE($4, avatar_url),
			goal = COALESCE($5, goal),
			payment_goal = COALESCE($6, payment_goal),
			updated_at = now()
		WHERE uuid = $1
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id, req.Name, req.Email, req.AvatarURL, req.Goal, req.PaymentGoal))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) SetProfileComplete(ctx context.Context, id string, complete bool) error {
	const q = `UPDATE users SET is_profile_complete = $2, updated_at = now() WHERE uuid = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, complete)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	const q = `UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE uuid = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, customerID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) AssignOrganization(ctx context.Context, employeeID, organizationID string, name, email *string) (*domain.User, error) {
	const q = `
		UPDATE users
		SET
			organization_id = $2,
			name = COALESCE($3, name),
			email = COALESCE($4, email),
			updated_at = now()
		WHERE uuid = $1
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, employeeID, organizationID, name, email))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	const q = `SELECT balance FROM users WHERE uuid = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, q, id).Scan(&balance)
	if err == pgx.ErrNoRows {
		return decimal.Zero, domain.ErrNotFound
	}
	return balance, err
}

func (r *userRepository) CountEmployees(ctx context.Context, organizationID string) (int, error) {
	const q = `SELECT count(*) FROM users WHERE organization_id = $1 AND user_type = 'employee'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.pool.QueryRow(ctx, q, organizationID).Scan(&n)
	return n, err
}
