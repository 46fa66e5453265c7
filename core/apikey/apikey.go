package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/cosmicds/cds-api/core"
)

const secretLen = 24

var (
	// errors
	ErrKeyNotFound = errors.New("api key not found")
	ErrInvalidKey  = errors.New("invalid api key")
)

type (
	// APIKey is an issued key. Only the bcrypt hash of its secret is kept.
	APIKey struct {
		ID        int       `json:"id" db:"id"`
		Client    string    `json:"client" db:"client"`
		HashedKey []byte    `json:"-" db:"hashed_key"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
	}

	Repository interface {
		CreateKey(ctx context.Context, key APIKey) (APIKey, error)
		GetKey(ctx context.Context, id int) (APIKey, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger

		mu       sync.RWMutex
		verified map[string]APIKey // plaintext key -> key
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger, verified: make(map[string]APIKey)}
}

// Create issues a key for client. The returned plaintext "<id>.<secret>" cannot be recovered later.
func (svc *Service) Create(ctx context.Context, client string) (string, APIKey, error) {
	client = core.CleanString(client)
	if client == "" {
		return "", APIKey{}, core.NewValidationError(nil, core.FieldError{Field: "client", Error: "this field is required"})
	}

	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", APIKey{}, errors.Wrap(err, "generating secret")
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", APIKey{}, errors.Wrap(err, "hashing secret")
	}

	key, err := svc.repo.CreateKey(ctx, APIKey{
		Client:    client,
		HashedKey: hash,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", APIKey{}, errors.Wrap(err, "storing api key")
	}
	svc.logger.Info("api key created", map[string]interface{}{"id": key.ID, "client": key.Client})
	return strconv.Itoa(key.ID) + "." + secret, key, nil
}

// Verify returns the key matching plaintext, or ErrInvalidKey.
func (svc *Service) Verify(ctx context.Context, plaintext string) (APIKey, error) {
	svc.mu.RLock()
	key, ok := svc.verified[plaintext]
	svc.mu.RUnlock()
	if ok {
		return key, nil
	}

	parts := strings.SplitN(plaintext, ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		return APIKey{}, ErrInvalidKey
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return APIKey{}, ErrInvalidKey
	}
	key, err = svc.repo.GetKey(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrKeyNotFound {
			return APIKey{}, ErrInvalidKey
		}
		return APIKey{}, errors.Wrap(err, "getting api key")
	}
	if err := bcrypt.CompareHashAndPassword(key.HashedKey, []byte(parts[1])); err != nil {
		return APIKey{}, ErrInvalidKey
	}

	svc.mu.Lock()
	svc.verified[plaintext] = key
	svc.mu.Unlock()
	return key, nil
}
