package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/branchbase/cli-auth-server/internal/model"
)

type PublishableClientKeyRepository interface {
	FindByKey(ctx context.Context, key string) (*model.PublishableClientKey, error)
	Create(ctx context.Context, params model.CreatePublishableClientKeyParams) (*model.PublishableClientKey, error)
	Revoke(ctx context.Context, id string) error
	DeleteRevoked(ctx context.Context, olderThan time.Duration) (int64, error)
}

type clientKeyRepo struct {
	db *sqlx.DB
}

func NewPublishableClientKeyRepository(db *sqlx.DB) PublishableClientKeyRepository {
	return &clientKeyRepo{db: db}
}

func (r *clientKeyRepo) FindByKey(ctx context.Context, key string) (*model.PublishableClientKey, error) {
	var ck model.PublishableClientKey
	err := r.db.GetContext(ctx, &ck, `
		SELECT * FROM publishable_client_keys WHERE key = $1
	`, key)
	return HandleNotFound(&ck, err)
}

func (r *clientKeyRepo) Create(ctx context.Context, params model.CreatePublishableClientKeyParams) (*model.PublishableClientKey, error) {
	var ck model.PublishableClientKey
	err := r.db.GetContext(ctx, &ck, `
		INSERT INTO publishable_client_keys (key, project_id, branch_id)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.Key, params.ProjectID, params.BranchID)
	if err != nil {
		return nil, err
	}
	return &ck, nil
}

func (r *clientKeyRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE publishable_client_keys SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, time.Now())
	return err
}

func (r *clientKeyRepo) DeleteRevoked(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM publishable_client_keys
		WHERE revoked_at IS NOT NULL AND revoked_at < NOW() - ($1 * interval '1 second')
	`, int64(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
