package identities

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

const selectColumns = `id, username, display_name, email, phone, password_verifier, role_id,
       refresh_token, refresh_token_expires_at, last_login_at, active, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		i      models.Identity
		roleID int
	)

	err := row.Scan(&i.ID, &i.UserName, &i.DisplayName, &i.Email, &i.Phone, &i.PasswordVerifier, &roleID,
		&i.RenewalToken, &i.RenewalTokenExpiry, &i.LastLoginAt, &i.Active, &i.CreatedAt)
	if err != nil {
		return nil, err
	}

	role, ok := models.RoleByID(roleID)
	if !ok {
		return nil, oops.Code("IDENTITY_UNKNOWN_ROLE").With("role_id", roleID).Errorf("unknown role id %d", roleID)
	}
	i.Role = role

	return &i, nil
}

func (r *PostgresRepository) get(ctx context.Context, query string, key string, arg any) (*models.Identity, error) {
	i, err := scanIdentity(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.Code("IDENTITY_NOT_FOUND").With(key, arg).Wrap(common.ErrorNotFound)
		}
		return nil, oops.Code("IDENTITY_QUERY_FAILED").With(key, arg).Wrap(err)
	}
	return i, nil
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + `
		 FROM identities
		 WHERE username = $1`

	return r.get(ctx, query, "username", userName)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + `
		 FROM identities
		 WHERE id = $1`

	return r.get(ctx, query, "id", id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + `
		 FROM identities
		 WHERE id = $1
		 FOR UPDATE`

	return r.get(ctx, query, "id", id)
}

func (r *PostgresRepository) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM identities WHERE username = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userName).Scan(&exists); err != nil {
		return false, oops.Code("IDENTITY_QUERY_FAILED").With("username", userName).Wrap(err)
	}
	return exists, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, i *models.Identity) (bool, error) {
	if i.ID == 0 {
		return r.insert(ctx, i)
	}
	return r.update(ctx, i)
}

func (r *PostgresRepository) insert(ctx context.Context, i *models.Identity) (bool, error) {
	query :=
		`INSERT INTO identities (username, display_name, email, phone, password_verifier, role_id,
		                         refresh_token, refresh_token_expires_at, last_login_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		i.UserName, i.DisplayName, i.Email, i.Phone, i.PasswordVerifier, i.Role.ID(),
		i.RenewalToken, i.RenewalTokenExpiry, i.LastLoginAt, i.Active,
	).Scan(&i.ID, &i.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, oops.Code("IDENTITY_DUPLICATE").With("username", i.UserName).Wrap(common.ErrorAlreadyExists)
		}
		return false, oops.Code("IDENTITY_INSERT_FAILED").With("username", i.UserName).Wrap(err)
	}

	return true, nil
}

func (r *PostgresRepository) update(ctx context.Context, i *models.Identity) (bool, error) {
	query :=
		`UPDATE identities
		 SET display_name = $2, email = $3, phone = $4, password_verifier = $5, role_id = $6,
		     refresh_token = $7, refresh_token_expires_at = $8, last_login_at = $9, active = $10
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		i.ID, i.DisplayName, i.Email, i.Phone, i.PasswordVerifier, i.Role.ID(),
		i.RenewalToken, i.RenewalTokenExpiry, i.LastLoginAt, i.Active,
	)
	if err != nil {
		return false, oops.Code("IDENTITY_UPDATE_FAILED").With("id", i.ID).Wrap(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.Code("IDENTITY_UPDATE_FAILED").With("id", i.ID).Wrap(err)
	}
	return n > 0, nil
}
