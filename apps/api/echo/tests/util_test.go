package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/cosmicds/cds-api/apps/api/echo"
	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/eclipse"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	metricsvc "github.com/cosmicds/cds-api/services/metrics"
	inmemdb "github.com/cosmicds/cds-api/storage/database/inmem"
	"github.com/cosmicds/cds-api/tests"
)

type env struct {
	app        Server
	rosterRepo roster.Repository
	hubbleRepo hubble.Repository
	hubbleSvc  *hubble.Service
	apiKeySvc  *apikey.Service
}

// setup returns a server backed by a fresh in-memory database.
func setup(t *testing.T, configure ...func(*Options)) env {
	t.Helper()
	db := inmemdb.Open()
	e := env{
		rosterRepo: inmemdb.NewRosterRepository(db),
		hubbleRepo: inmemdb.NewHubbleRepository(db),
	}

	logger := testutil.Logger{}
	rosterSvc := roster.NewService(e.rosterRepo, logger)
	e.hubbleSvc = hubble.NewService(e.hubbleRepo, rosterSvc, logger, nil)
	rosterSvc.OnClassCreated(e.hubbleSvc.ClassSetup)
	e.apiKeySvc = apikey.NewService(inmemdb.NewAPIKeyRepository(db), logger)

	opts := &Options{
		TestMode:       true,
		DisableReqLogs: true,
		Logger:         logger,
		Metrics:        metricsvc.New(),
		RosterSvc:      rosterSvc,
		HubbleSvc:      e.hubbleSvc,
		EclipseSvc:     eclipse.NewService(inmemdb.NewEclipseRepository(db), logger),
		APIKeySvc:      e.apiKeySvc,
	}
	for _, fn := range configure {
		fn(opts)
	}
	e.app = NewServer(nil, opts)
	return e
}

func (e env) do(method, path string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newRequest(method, path, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	key      string
	wantCode int
	wantData []byte
}

func newKeyRequest(method, path, key string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", key)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newKeyRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

// decode unmarshals the response body into a generic JSON object.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
	return body
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []interface{} {
	t.Helper()
	var list []interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decodeList() failed: %v; body %s", err, rec.Body.String())
	}
	return list
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newKeyRequest(tt.method, tt.path, tt.key, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
