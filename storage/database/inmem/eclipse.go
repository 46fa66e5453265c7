package inmemdb

import (
	"context"
	"sort"

	"github.com/cosmicds/cds-api/core/eclipse"
)

type eclipseRepository struct {
	db *DB
}

func NewEclipseRepository(db *DB) eclipse.Repository {
	return &eclipseRepository{db: db}
}

func copyData(d eclipse.Data) eclipse.Data {
	d.UserSelectedLocations = append(eclipse.LatLonArray{}, d.UserSelectedLocations...)
	d.CloudCoverSelectedLocations = append(eclipse.LatLonArray{}, d.CloudCoverSelectedLocations...)
	d.TextSearchSelectedLocations = append(eclipse.LatLonArray{}, d.TextSearchSelectedLocations...)
	return d
}

func (repo *eclipseRepository) UpsertData(_ context.Context, d eclipse.Data) (eclipse.Data, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d = copyData(d)
	repo.db.eclipse[d.UserUUID] = d
	return copyData(d), nil
}

func (repo *eclipseRepository) GetData(_ context.Context, userUUID string) (eclipse.Data, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	d, ok := repo.db.eclipse[userUUID]
	if !ok {
		return eclipse.Data{}, eclipse.ErrDataNotFound
	}
	return copyData(d), nil
}

func (repo *eclipseRepository) QueryData(_ context.Context) ([]eclipse.Data, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	all := make([]eclipse.Data, 0, len(repo.db.eclipse))
	for _, d := range repo.db.eclipse {
		all = append(all, copyData(d))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserUUID < all[j].UserUUID })
	return all, nil
}

func (repo *eclipseRepository) UpdateData(_ context.Context, userUUID string, fn func(d *eclipse.Data)) (eclipse.Data, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.eclipse[userUUID]
	if !ok {
		return eclipse.Data{}, eclipse.ErrDataNotFound
	}
	d = copyData(d)
	fn(&d)
	repo.db.eclipse[userUUID] = d
	return copyData(d), nil
}
