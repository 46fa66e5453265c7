package tests

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolarEclipseData(t *testing.T) {
	e := setup(t)
	userUUID := uuid.NewString()

	entry := map[string]interface{}{
		"user_uuid":                      userUUID,
		"user_selected_locations":        [][2]float64{{42.3, -71.1}},
		"cloud_cover_selected_locations": [][2]float64{},
		"text_search_selected_locations": [][2]float64{{40.7, -74}, {34, -118.2}},
		"app_time_ms":                    1200,
	}
	rec := e.do(http.MethodPut, "/solar-eclipse-2024/data", marshallObj(t, entry))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	resp := body["response"].(map[string]interface{})
	assert.Equal(t, float64(1), resp["user_selected_locations_count"])
	assert.Equal(t, float64(2), resp["text_search_selected_locations_count"])
	assert.Equal(t, float64(1200), resp["app_time_ms"])

	rec = e.do(http.MethodPatch, "/solar-eclipse-2024/data/"+userUUID, []byte(`{
		"user_selected_locations": [[51.5, -0.1]],
		"delta_app_time_ms": 300
	}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]interface{}{"success": true}, decode(t, rec))

	rec = e.do(http.MethodGet, "/solar-eclipse-2024/data/"+userUUID)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, userUUID, body["user_uuid"])
	resp = body["response"].(map[string]interface{})
	assert.Equal(t, float64(2), resp["user_selected_locations_count"])
	assert.Equal(t, float64(1500), resp["app_time_ms"])

	rec = e.do(http.MethodGet, "/solar-eclipse-2024/data")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["responses"], 1)

	unknown := uuid.NewString()
	runTests(t, e.app, []httpTest{
		{
			name:     "invalid uuid",
			method:   http.MethodPut,
			path:     "/solar-eclipse-2024/data",
			body:     []byte(`{"user_uuid": "nope", "user_selected_locations": [], "cloud_cover_selected_locations": [], "text_search_selected_locations": []}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"user_uuid": "user_uuid must be a valid UUID"}`),
		},
		{
			name:     "missing locations",
			method:   http.MethodPut,
			path:     "/solar-eclipse-2024/data",
			body:     []byte(`{"user_uuid": "` + unknown + `"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"user_selected_locations": "this field is required",
				"cloud_cover_selected_locations": "this field is required",
				"text_search_selected_locations": "this field is required"
			}`),
		},
		{
			name:     "unknown user",
			method:   http.MethodGet,
			path:     "/solar-eclipse-2024/data/" + unknown,
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"user_uuid": "` + unknown + `", "response": null}`),
		},
		{
			name:     "update unknown user",
			method:   http.MethodPatch,
			path:     "/solar-eclipse-2024/data/" + unknown,
			body:     []byte(`{"delta_app_time_ms": 10}`),
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"success": false, "error": "No response found for user ` + unknown + `"}`),
		},
	})
}
