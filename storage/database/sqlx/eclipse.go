package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/eclipse"
)

const (
	eclipseColumns = `user_uuid, user_selected_locations, user_selected_locations_count,
		cloud_cover_selected_locations, cloud_cover_selected_locations_count,
		text_search_selected_locations, text_search_selected_locations_count,
		advanced_weather_selected_locations_count, info_time_ms, app_time_ms, advanced_weather_time_ms,
		weather_info_time_ms, user_guide_time_ms, eclipse_timer_time_ms, forecast_info_time_ms, timestamp`

	eclipseValues = `:user_uuid, :user_selected_locations, :user_selected_locations_count,
		:cloud_cover_selected_locations, :cloud_cover_selected_locations_count,
		:text_search_selected_locations, :text_search_selected_locations_count,
		:advanced_weather_selected_locations_count, :info_time_ms, :app_time_ms, :advanced_weather_time_ms,
		:weather_info_time_ms, :user_guide_time_ms, :eclipse_timer_time_ms, :forecast_info_time_ms, :timestamp`

	eclipseUpdates = `user_selected_locations = excluded.user_selected_locations,
		user_selected_locations_count = excluded.user_selected_locations_count,
		cloud_cover_selected_locations = excluded.cloud_cover_selected_locations,
		cloud_cover_selected_locations_count = excluded.cloud_cover_selected_locations_count,
		text_search_selected_locations = excluded.text_search_selected_locations,
		text_search_selected_locations_count = excluded.text_search_selected_locations_count,
		advanced_weather_selected_locations_count = excluded.advanced_weather_selected_locations_count,
		info_time_ms = excluded.info_time_ms,
		app_time_ms = excluded.app_time_ms,
		advanced_weather_time_ms = excluded.advanced_weather_time_ms,
		weather_info_time_ms = excluded.weather_info_time_ms,
		user_guide_time_ms = excluded.user_guide_time_ms,
		eclipse_timer_time_ms = excluded.eclipse_timer_time_ms,
		forecast_info_time_ms = excluded.forecast_info_time_ms,
		timestamp = excluded.timestamp`
)

type eclipseRepository struct {
	db *sqlx.DB
}

func NewEclipseRepository(db *sqlx.DB) eclipse.Repository {
	return &eclipseRepository{db: db}
}

func upsertEclipseData(ctx context.Context, e sqlx.ExtContext, d eclipse.Data) error {
	q := `INSERT INTO solar_eclipse_2024_data (` + eclipseColumns + `) VALUES (` + eclipseValues + `)
		ON CONFLICT (user_uuid) DO UPDATE SET ` + eclipseUpdates
	if _, err := sqlx.NamedExecContext(ctx, e, q, d); err != nil {
		return errors.Wrap(err, "upserting solar eclipse data")
	}
	return nil
}

func (repo *eclipseRepository) UpsertData(ctx context.Context, d eclipse.Data) (eclipse.Data, error) {
	if err := upsertEclipseData(ctx, repo.db, d); err != nil {
		return eclipse.Data{}, err
	}
	return d, nil
}

func getEclipseData(ctx context.Context, q sqlx.QueryerContext, userUUID string, forUpdate bool) (eclipse.Data, error) {
	var d eclipse.Data
	query := `SELECT ` + eclipseColumns + ` FROM solar_eclipse_2024_data WHERE user_uuid = ?`
	if forUpdate && driverName(q) == "postgres" {
		query += " FOR UPDATE"
	}
	if err := sqlx.GetContext(ctx, q, &d, sqlx.Rebind(sqlx.BindType(driverName(q)), query), userUUID); err != nil {
		if err == sql.ErrNoRows {
			return eclipse.Data{}, eclipse.ErrDataNotFound
		}
		return eclipse.Data{}, errors.Wrap(err, "selecting solar eclipse data")
	}
	return d, nil
}

func (repo *eclipseRepository) GetData(ctx context.Context, userUUID string) (eclipse.Data, error) {
	return getEclipseData(ctx, repo.db, userUUID, false)
}

func (repo *eclipseRepository) QueryData(ctx context.Context) ([]eclipse.Data, error) {
	all := make([]eclipse.Data, 0)
	q := `SELECT ` + eclipseColumns + ` FROM solar_eclipse_2024_data ORDER BY user_uuid`
	if err := repo.db.SelectContext(ctx, &all, q); err != nil {
		return nil, errors.Wrap(err, "selecting solar eclipse data")
	}
	return all, nil
}

func (repo *eclipseRepository) UpdateData(ctx context.Context, userUUID string, fn func(d *eclipse.Data)) (eclipse.Data, error) {
	var d eclipse.Data
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if d, err = getEclipseData(ctx, tx, userUUID, true); err != nil {
			return err
		}
		fn(&d)
		return upsertEclipseData(ctx, tx, d)
	})
	if err != nil {
		return eclipse.Data{}, err
	}
	return d, nil
}
