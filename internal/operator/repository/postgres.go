package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/operator/domain"
)

const (
	operatorColumns = `id, name, email, role, password_hash, created_at`
	uniqueViolation = "23505"
)

// PostgresRepository stores operators in the operators table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an operator repository that uses db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the operator for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	return r.getOne(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = $1`, id)
}

// GetByEmail returns the operator with email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	return r.getOne(ctx, `SELECT `+operatorColumns+` FROM operators WHERE lower(email) = $1`, strings.ToLower(email))
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Operator, error) {
	o, err := scanOperator(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

// Create inserts o. o.ID must be set.
func (r *PostgresRepository) Create(ctx context.Context, o *domain.Operator) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operators (`+operatorColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Name, strings.ToLower(o.Email), string(o.Role), o.PasswordHash, o.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.Conflict("operator %s already exists", o.Email)
	}
	return err
}

// List returns operators ordered by email.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Operator, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperator(row rowScanner) (*domain.Operator, error) {
	var (
		o    domain.Operator
		role string
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Email, &role, &o.PasswordHash, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Role = domain.Role(role)
	return &o, nil
}
