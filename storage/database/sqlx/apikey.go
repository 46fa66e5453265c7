package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/apikey"
)

type apiKeyRepository struct {
	db *sqlx.DB
}

func NewAPIKeyRepository(db *sqlx.DB) apikey.Repository {
	return &apiKeyRepository{db: db}
}

func (repo *apiKeyRepository) CreateKey(ctx context.Context, key apikey.APIKey) (apikey.APIKey, error) {
	q := repo.db.Rebind(`INSERT INTO api_keys (client, hashed_key, created_at) VALUES (?, ?, ?) RETURNING id`)
	if err := repo.db.GetContext(ctx, &key.ID, q, key.Client, key.HashedKey, key.CreatedAt); err != nil {
		return apikey.APIKey{}, errors.Wrap(err, "inserting api key")
	}
	return key, nil
}

func (repo *apiKeyRepository) GetKey(ctx context.Context, id int) (apikey.APIKey, error) {
	var key apikey.APIKey
	q := repo.db.Rebind(`SELECT id, client, hashed_key, created_at FROM api_keys WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &key, q, id); err != nil {
		if err == sql.ErrNoRows {
			return apikey.APIKey{}, apikey.ErrKeyNotFound
		}
		return apikey.APIKey{}, errors.Wrap(err, "selecting api key")
	}
	return key, nil
}
