package eclipse

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core"
)

var (
	// errors
	ErrDataNotFound = errors.New("solar eclipse data not found")
)

type (
	Repository interface {
		// UpsertData inserts or replaces the record of d.UserUUID.
		UpsertData(ctx context.Context, d Data) (Data, error)
		GetData(ctx context.Context, userUUID string) (Data, error)
		QueryData(ctx context.Context) ([]Data, error)
		// UpdateData applies fn to the stored record and saves the result atomically.
		// It fails with ErrDataNotFound when there is no record.
		UpdateData(ctx context.Context, userUUID string, fn func(d *Data)) (Data, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Submit stores the entry, replacing any earlier record of the same user.
func (svc *Service) Submit(ctx context.Context, entry Entry) (Data, error) {
	d := entry.Data()
	d.Timestamp = time.Now().UTC()
	d, err := svc.repo.UpsertData(ctx, d)
	if err != nil {
		return Data{}, errors.Wrap(err, "storing solar eclipse data")
	}
	return d, nil
}

// Update applies the update to the user's record. It reports false when the user has no record.
func (svc *Service) Update(ctx context.Context, userUUID string, update Update) (bool, error) {
	_, err := svc.repo.UpdateData(ctx, userUUID, func(d *Data) {
		update.Apply(d)
		d.Timestamp = time.Now().UTC()
	})
	if err != nil {
		if errors.Cause(err) == ErrDataNotFound {
			svc.logger.Debug("no solar eclipse data to update", map[string]interface{}{"user_uuid": userUUID})
			return false, nil
		}
		return false, errors.Wrap(err, "updating solar eclipse data")
	}
	return true, nil
}

func (svc *Service) Get(ctx context.Context, userUUID string) (Data, error) {
	return svc.repo.GetData(ctx, userUUID)
}

func (svc *Service) GetAll(ctx context.Context) ([]Data, error) {
	return svc.repo.QueryData(ctx)
}
