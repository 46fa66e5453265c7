package inmemdb

import (
	"context"

	"github.com/cosmicds/cds-api/core/apikey"
)

type apiKeyRepository struct {
	db *DB
}

func NewAPIKeyRepository(db *DB) apikey.Repository {
	return &apiKeyRepository{db: db}
}

func (repo *apiKeyRepository) CreateKey(_ context.Context, key apikey.APIKey) (apikey.APIKey, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key.ID = repo.db.nextID("api_keys")
	repo.db.apiKeys[key.ID] = key
	return key, nil
}

func (repo *apiKeyRepository) GetKey(_ context.Context, id int) (apikey.APIKey, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if key, ok := repo.db.apiKeys[id]; ok {
		return key, nil
	}
	return apikey.APIKey{}, apikey.ErrKeyNotFound
}
