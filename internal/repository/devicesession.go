package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/branchbase/cli-auth-server/internal/model"
)

// ErrDuplicateCode is returned by Create when a polling or login code collides
// with an existing row. The caller retries with a freshly generated pair.
var ErrDuplicateCode = errors.New("polling or login code already exists")

type DeviceSessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.DeviceSession, error)
	// FindByPollingCode and FindByLoginCode look up by code alone, without
	// filtering on expiry or bound state. Callers must be able to tell an
	// unknown code apart from an expired session.
	FindByPollingCode(ctx context.Context, code string) (*model.DeviceSession, error)
	FindByLoginCode(ctx context.Context, code string) (*model.DeviceSession, error)
	Create(ctx context.Context, params model.CreateDeviceSessionParams) (*model.DeviceSession, error)
	// BindCredential conditionally attaches a credential to an unbound,
	// unexpired session. The returned bool reports whether this call won the
	// bind; of N concurrent attempts on one session at most one wins.
	BindCredential(ctx context.Context, id string, userID, accessToken, refreshToken string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) DeviceSessionRepository
}

// deviceSessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type deviceSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type deviceSessionRepo struct {
	db deviceSessionDB
}

func NewDeviceSessionRepository(db *sqlx.DB) DeviceSessionRepository {
	return &deviceSessionRepo{db: db}
}

func (r *deviceSessionRepo) WithTx(tx *sqlx.Tx) DeviceSessionRepository {
	return &deviceSessionRepo{db: tx}
}

func (r *deviceSessionRepo) FindByID(ctx context.Context, id string) (*model.DeviceSession, error) {
	var session model.DeviceSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM device_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *deviceSessionRepo) FindByPollingCode(ctx context.Context, code string) (*model.DeviceSession, error) {
	var session model.DeviceSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM device_sessions WHERE polling_code = $1
	`, code)
	return HandleNotFound(&session, err)
}

func (r *deviceSessionRepo) FindByLoginCode(ctx context.Context, code string) (*model.DeviceSession, error) {
	var session model.DeviceSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM device_sessions WHERE login_code = $1
	`, code)
	return HandleNotFound(&session, err)
}

func (r *deviceSessionRepo) Create(ctx context.Context, params model.CreateDeviceSessionParams) (*model.DeviceSession, error) {
	var session model.DeviceSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO device_sessions (polling_code, login_code, project_id, branch_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.PollingCode, params.LoginCode, params.ProjectID, params.BranchID, params.ExpiresAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateCode
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *deviceSessionRepo) BindCredential(ctx context.Context, id string, userID, accessToken, refreshToken string, now time.Time) (bool, error) {
	// Compare-and-swap on the unbound state. The WHERE clause is what makes
	// the bind exactly-once under concurrent attempts. A session is expired
	// strictly after expires_at, so a bind at the exact instant still wins.
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_sessions SET
			user_id = $2,
			access_token = $3,
			refresh_token = $4,
			authorized_at = $5,
			updated_at = $5
		WHERE id = $1
		AND refresh_token IS NULL
		AND expires_at >= $5
	`, id, userID, accessToken, refreshToken, now)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *deviceSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM device_sessions
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
