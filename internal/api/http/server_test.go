package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/metrics"
	"github.com/partwise/partwise/internal/query/planner"
	"github.com/partwise/partwise/internal/routing"
	"github.com/partwise/partwise/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog, err := manifest.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	_, err = catalog.RegisterTable(context.Background(), types.TableDef{
		TableID:    "events",
		Strategy:   types.StrategyRange,
		KeyExpr:    "id",
		KeyKind:    types.KindInt,
		AutoCreate: true,
		Interval:   "10",
		Ranges: []types.RangeDef{
			{Name: "p0", Min: "0", Max: "10"},
			{Name: "p1", Min: "20", Max: "30"},
		},
	})
	require.NoError(t, err)

	// The catalog is read directly so that writes made through the API are
	// visible at once.
	cache := manifest.NewSnapshotCache(catalog, manifest.DefaultCacheConfig(), nil)
	t.Cleanup(cache.Close)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	srv := httptest.NewServer(NewHandler(Deps{
		Planner:  planner.NewPlanner(catalog),
		Router:   routing.NewService(cache, catalog, routing.Config{}, nil, nil),
		Catalog:  catalog,
		Gatherer: reg,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestPlanEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/v1/plan", PlanRequest{
		SQL:    "SELECT * FROM events WHERE id >= 5 AND id < $1",
		Params: []interface{}{25},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body struct {
		Table   string               `json:"table"`
		Targets []planner.ScanTarget `json:"targets"`
		Gap     bool                 `json:"gap"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "events", body.Table)
	require.Len(t, body.Targets, 2)
	assert.Equal(t, "p0", body.Targets[0].Name)
	assert.True(t, body.Targets[0].Recheck)

	resp = post(t, srv.URL+"/v1/plan", PlanRequest{SQL: "SELECT * FROM events WHERE id = 15"})
	decode(t, resp, &body)
	assert.True(t, body.Gap)
	assert.Empty(t, body.Targets)
}

func TestPlanEndpoint_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"missing sql", PlanRequest{}, http.StatusBadRequest, ""},
		{"bad sql", PlanRequest{SQL: "SELECT * FROM"}, http.StatusBadRequest, "PARSE_ERROR"},
		{"unknown table", PlanRequest{SQL: "SELECT * FROM nope"}, http.StatusNotFound, "NOT_PARTITIONED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/plan", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var e ErrorResponse
			decode(t, resp, &e)
			assert.Equal(t, tt.code, e.Code)
			assert.NotEmpty(t, e.RequestID)
		})
	}

	resp, err := http.Get(srv.URL + "/v1/plan")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouteEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/v1/route", RouteRequest{
		Table: "events",
		Rows:  []types.Row{{"id": 3}, {"id": 25}, {"id": 31}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body RouteResponse
	decode(t, resp, &body)
	require.Len(t, body.Results, 3)
	assert.Equal(t, "p0", body.Results[0].Partition)
	assert.Equal(t, "p1", body.Results[1].Partition)
	assert.Equal(t, 1, body.Results[2].Spawned)

	resp = post(t, srv.URL+"/v1/route", RouteRequest{Table: "events", Row: types.Row{"id": 15}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/route", RouteRequest{Table: "events"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouteEndpoint_KeepsIntegerPrecision(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/v1/tables", types.TableDef{
		TableID:  "ids",
		Strategy: types.StrategyRange,
		KeyExpr:  "id",
		KeyKind:  types.KindInt,
		Ranges: []types.RangeDef{
			{Name: "below", Max: "9007199254740993"},
			{Name: "above", Min: "9007199254740993"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		id   string
		want string
	}{
		{"9007199254740992", "below"},
		{"9007199254740993", "above"},
	}
	for _, tt := range tests {
		body := `{"table": "ids", "row": {"id": ` + tt.id + `}}`
		resp, err := http.Post(srv.URL+"/v1/route", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out RouteResponse
		decode(t, resp, &out)
		require.Len(t, out.Results, 1)
		assert.Equal(t, tt.want, out.Results[0].Partition, "id %s", tt.id)
	}
}

func TestTablesEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/v1/tables", types.TableDef{
		TableID:        "users",
		Strategy:       types.StrategyHash,
		KeyExpr:        "user_id",
		KeyKind:        types.KindText,
		HashPartitions: 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/tables", types.TableDef{TableID: "users", Strategy: types.StrategyHash, KeyExpr: "user_id", KeyKind: types.KindText, HashPartitions: 4})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	listResp, err := http.Get(srv.URL + "/v1/tables")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var list TablesResponse
	decode(t, listResp, &list)
	require.Len(t, list.Tables, 2)
	assert.Equal(t, "events", list.Tables[0].TableID)

	resp = post(t, srv.URL+"/v1/tables/events/partitions", types.RangeDef{Name: "p2", Min: "30", Max: "40"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table TableResponse
	decode(t, resp, &table)
	assert.Len(t, table.Table.Ranges, 3)
	assert.Equal(t, int64(2), table.Table.Version)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/tables/users", nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	showResp, err := http.Get(srv.URL + "/v1/tables/users")
	require.NoError(t, err)
	showResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, showResp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	post(t, srv.URL+"/v1/plan", PlanRequest{SQL: "SELECT * FROM events"})

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.True(t, strings.Contains(buf.String(), "partwise_planner_plans_total"))
}
