package eclipse

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type (
	// LatLonArray is a list of [latitude, longitude] pairs, stored as JSON text.
	LatLonArray [][2]float64

	// Data is the survey record of one app user.
	Data struct {
		UserUUID                              string      `json:"user_uuid" db:"user_uuid"`
		UserSelectedLocations                 LatLonArray `json:"user_selected_locations" db:"user_selected_locations"`
		UserSelectedLocationsCount            int         `json:"user_selected_locations_count" db:"user_selected_locations_count"`
		CloudCoverSelectedLocations           LatLonArray `json:"cloud_cover_selected_locations" db:"cloud_cover_selected_locations"`
		CloudCoverSelectedLocationsCount      int         `json:"cloud_cover_selected_locations_count" db:"cloud_cover_selected_locations_count"`
		TextSearchSelectedLocations           LatLonArray `json:"text_search_selected_locations" db:"text_search_selected_locations"`
		TextSearchSelectedLocationsCount      int         `json:"text_search_selected_locations_count" db:"text_search_selected_locations_count"`
		AdvancedWeatherSelectedLocationsCount int         `json:"advanced_weather_selected_locations_count" db:"advanced_weather_selected_locations_count"`
		InfoTimeMs                            int         `json:"info_time_ms" db:"info_time_ms"`
		AppTimeMs                             int         `json:"app_time_ms" db:"app_time_ms"`
		AdvancedWeatherTimeMs                 int         `json:"advanced_weather_time_ms" db:"advanced_weather_time_ms"`
		WeatherInfoTimeMs                     int         `json:"weather_info_time_ms" db:"weather_info_time_ms"`
		UserGuideTimeMs                       int         `json:"user_guide_time_ms" db:"user_guide_time_ms"`
		EclipseTimerTimeMs                    int         `json:"eclipse_timer_time_ms" db:"eclipse_timer_time_ms"`
		ForecastInfoTimeMs                    int         `json:"forecast_info_time_ms" db:"forecast_info_time_ms"`
		Timestamp                             time.Time   `json:"timestamp" db:"timestamp"`
	}

	// Entry is a full submission. Omitted counters default to 0, except the cloud cover count
	// which defaults to the number of cloud cover locations.
	Entry struct {
		UserUUID                              string      `json:"user_uuid" validate:"required,uuid"`
		UserSelectedLocations                 LatLonArray `json:"user_selected_locations" validate:"required"`
		CloudCoverSelectedLocations           LatLonArray `json:"cloud_cover_selected_locations" validate:"required"`
		TextSearchSelectedLocations           LatLonArray `json:"text_search_selected_locations" validate:"required"`
		AdvancedWeatherSelectedLocationsCount *int        `json:"advanced_weather_selected_locations_count" validate:"omitempty,min=0"`
		CloudCoverSelectedLocationsCount      *int        `json:"cloud_cover_selected_locations_count" validate:"omitempty,min=0"`
		InfoTimeMs                            *int        `json:"info_time_ms" validate:"omitempty,min=0"`
		AppTimeMs                             *int        `json:"app_time_ms" validate:"omitempty,min=0"`
		AdvancedWeatherTimeMs                 *int        `json:"advanced_weather_time_ms" validate:"omitempty,min=0"`
		WeatherInfoTimeMs                     *int        `json:"weather_info_time_ms" validate:"omitempty,min=0"`
		UserGuideTimeMs                       *int        `json:"user_guide_time_ms" validate:"omitempty,min=0"`
		EclipseTimerTimeMs                    *int        `json:"eclipse_timer_time_ms" validate:"omitempty,min=0"`
		ForecastInfoTimeMs                    *int        `json:"forecast_info_time_ms" validate:"omitempty,min=0"`
	}

	// Update appends locations and adds deltas to an existing record. Absent fields are left untouched.
	Update struct {
		UserSelectedLocations                      LatLonArray `json:"user_selected_locations"`
		CloudCoverSelectedLocations                LatLonArray `json:"cloud_cover_selected_locations"`
		TextSearchSelectedLocations                LatLonArray `json:"text_search_selected_locations"`
		DeltaAdvancedWeatherSelectedLocationsCount int         `json:"delta_advanced_weather_selected_locations_count"`
		DeltaCloudCoverSelectedLocationsCount      int         `json:"delta_cloud_cover_selected_locations_count"`
		DeltaInfoTimeMs                            int         `json:"delta_info_time_ms"`
		DeltaAppTimeMs                             int         `json:"delta_app_time_ms"`
		DeltaAdvancedWeatherTimeMs                 int         `json:"delta_advanced_weather_time_ms"`
		DeltaWeatherInfoTimeMs                     int         `json:"delta_weather_info_time_ms"`
		DeltaUserGuideTimeMs                       int         `json:"delta_user_guide_time_ms"`
		DeltaEclipseTimerTimeMs                    int         `json:"delta_eclipse_timer_time_ms"`
		DeltaForecastInfoTimeMs                    int         `json:"delta_forecast_info_time_ms"`
	}
)

// Value implements driver.Valuer.
func (a LatLonArray) Value() (driver.Value, error) {
	if a == nil {
		a = LatLonArray{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *LatLonArray) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*a = LatLonArray{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return errors.Errorf("cannot scan %T into LatLonArray", src)
	}
	if len(b) == 0 {
		*a = LatLonArray{}
		return nil
	}
	return json.Unmarshal(b, a)
}

// Data builds the record stored for the entry.
func (e Entry) Data() Data {
	d := Data{
		UserUUID:                         e.UserUUID,
		UserSelectedLocations:            e.UserSelectedLocations,
		UserSelectedLocationsCount:       len(e.UserSelectedLocations),
		CloudCoverSelectedLocations:      e.CloudCoverSelectedLocations,
		CloudCoverSelectedLocationsCount: len(e.CloudCoverSelectedLocations),
		TextSearchSelectedLocations:      e.TextSearchSelectedLocations,
		TextSearchSelectedLocationsCount: len(e.TextSearchSelectedLocations),
	}
	if e.CloudCoverSelectedLocationsCount != nil {
		d.CloudCoverSelectedLocationsCount = *e.CloudCoverSelectedLocationsCount
	}
	for dst, src := range map[*int]*int{
		&d.AdvancedWeatherSelectedLocationsCount: e.AdvancedWeatherSelectedLocationsCount,
		&d.InfoTimeMs:                            e.InfoTimeMs,
		&d.AppTimeMs:                             e.AppTimeMs,
		&d.AdvancedWeatherTimeMs:                 e.AdvancedWeatherTimeMs,
		&d.WeatherInfoTimeMs:                     e.WeatherInfoTimeMs,
		&d.UserGuideTimeMs:                       e.UserGuideTimeMs,
		&d.EclipseTimerTimeMs:                    e.EclipseTimerTimeMs,
		&d.ForecastInfoTimeMs:                    e.ForecastInfoTimeMs,
	} {
		if src != nil {
			*dst = *src
		}
	}
	return d
}

// Apply applies the update to d.
func (u Update) Apply(d *Data) {
	if u.UserSelectedLocations != nil {
		d.UserSelectedLocations = append(d.UserSelectedLocations, u.UserSelectedLocations...)
		d.UserSelectedLocationsCount = len(d.UserSelectedLocations)
	}
	if u.CloudCoverSelectedLocations != nil {
		d.CloudCoverSelectedLocations = append(d.CloudCoverSelectedLocations, u.CloudCoverSelectedLocations...)
	}
	if u.TextSearchSelectedLocations != nil {
		d.TextSearchSelectedLocations = append(d.TextSearchSelectedLocations, u.TextSearchSelectedLocations...)
		d.TextSearchSelectedLocationsCount = len(d.TextSearchSelectedLocations)
	}
	d.AdvancedWeatherSelectedLocationsCount += u.DeltaAdvancedWeatherSelectedLocationsCount
	d.CloudCoverSelectedLocationsCount += u.DeltaCloudCoverSelectedLocationsCount
	d.InfoTimeMs += u.DeltaInfoTimeMs
	d.AppTimeMs += u.DeltaAppTimeMs
	d.AdvancedWeatherTimeMs += u.DeltaAdvancedWeatherTimeMs
	d.WeatherInfoTimeMs += u.DeltaWeatherInfoTimeMs
	d.UserGuideTimeMs += u.DeltaUserGuideTimeMs
	d.EclipseTimerTimeMs += u.DeltaEclipseTimerTimeMs
	d.ForecastInfoTimeMs += u.DeltaForecastInfoTimeMs
}
