package zonal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/couchcryptid/plot-timeseries-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		},
	}
}

func testQuery(t *testing.T) domain.SceneQuery {
	t.Helper()
	ds, err := domain.LookupDataset("sentinel2")
	require.NoError(t, err)
	regions, err := domain.BuildRegions([]domain.Location{{ID: 0, Lon: -60.1, Lat: -2.3}}, 50)
	require.NoError(t, err)
	return domain.SceneQuery{Dataset: ds, Regions: regions}
}

func TestClient_ListScenes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scenes", r.URL.Path)
		assert.Equal(t, "COPERNICUS/S2_SR", r.URL.Query().Get("collection"))
		assert.Equal(t, "2019-01-01", r.URL.Query().Get("start"))
		assert.Equal(t, "2022-12-31", r.URL.Query().Get("end"))
		assert.NotEmpty(t, r.URL.Query().Get("bbox"))
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"scenes":[
			{"id":"20190105T140051_20190105T140051_T20MQE","footprint":[-61,-3,-59,-2]},
			{"id":"20190107T140051_20190107T140051_T31TCJ","footprint":[1,40,2,41]},
			{"id":"20230101T140051_20230101T140051_T20MQE"},
			{"id":"20190110T140049_20190110T140049_T20MQE"}
		]}`)
	}))
	defer srv.Close()

	scenes, err := testClient(srv.URL).ListScenes(context.Background(), testQuery(t))
	require.NoError(t, err)

	require.Len(t, scenes, 2)
	assert.Equal(t, "20190105T140051_20190105T140051_T20MQE", scenes[0].ID)
	require.NotNil(t, scenes[0].Footprint)
	assert.Equal(t, "20190110T140049_20190110T140049_T20MQE", scenes[1].ID)
	assert.Nil(t, scenes[1].Footprint)
}

func TestClient_Sample(t *testing.T) {
	var got sampleRequest
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/zonal-mean", r.URL.Path)
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		require.NoError(t, json.Unmarshal(body, &raw))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"value": 812.25}`)
	}))
	defer srv.Close()

	q := testQuery(t)
	red, err := q.Dataset.Variable("red")
	require.NoError(t, err)

	v, ok, err := testClient(srv.URL).Sample(context.Background(), domain.SampleRequest{
		Collection: q.Dataset.Collection,
		Scene:      domain.Scene{ID: "20190105T1"},
		Region:     q.Regions[0],
		Variable:   red,
		Resolution: q.Dataset.Resolution,
		Mask:       q.Dataset.Mask,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 812.25, v)

	assert.Equal(t, "B4", got.Band)
	assert.Equal(t, "20190105T1", got.SceneID)
	assert.Equal(t, 10.0, got.Resolution)
	assert.Equal(t, "mean", got.Reducer)
	require.NotNil(t, got.Mask)
	assert.Equal(t, "cloud_shadow", got.Mask.Kind)
	assert.Equal(t, []string{"MSK_CLDPRB", "MSK_SNWPRB", "SCL"}, got.Mask.AuxBands)

	geom, ok := raw["geometry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Polygon", geom["type"])
}

func TestClient_SampleNullValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"value": null}`)
	}))
	defer srv.Close()

	q := testQuery(t)
	_, ok, err := testClient(srv.URL).Sample(context.Background(), domain.SampleRequest{
		Region:   q.Regions[0],
		Variable: q.Dataset.Variables[0],
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"value": 1.5}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	q := testQuery(t)
	v, ok, err := c.Sample(context.Background(), domain.SampleRequest{Region: q.Regions[0], Variable: q.Dataset.Variables[0]})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.ZonalRequests.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ZonalRequests.WithLabelValues("success")))
}

func TestClient_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	q := testQuery(t)
	_, _, err := c.Sample(context.Background(), domain.SampleRequest{Region: q.Regions[0], Variable: q.Dataset.Variables[0]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ZonalRequests.WithLabelValues("error")))
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "unknown band")
	}))
	defer srv.Close()

	q := testQuery(t)
	_, _, err := testClient(srv.URL).Sample(context.Background(), domain.SampleRequest{Region: q.Regions[0], Variable: q.Dataset.Variables[0]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown band")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := testQuery(t)
	_, _, err := testClient(srv.URL).Sample(ctx, domain.SampleRequest{Region: q.Regions[0], Variable: q.Dataset.Variables[0]})
	require.Error(t, err)
}
