// Package zonal talks to a remote zonal-statistics service that holds the
// source collections and computes masked region means server side.
package zonal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/couchcryptid/plot-timeseries-etl/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Client implements pipeline.SceneLister and domain.Sampler against the
// zonal-statistics HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// NewClient creates a zonal-statistics client.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 2 * time.Minute
			return bo
		},
	}
}

// ListScenes asks the service for the collection's scenes inside the query
// window and the regions' bounding box, then applies the date and footprint
// filters locally.
func (c *Client) ListScenes(ctx context.Context, q domain.SceneQuery) ([]domain.Scene, error) {
	params := url.Values{"collection": {q.Dataset.Collection}}
	start, end := q.Range()
	if !start.IsZero() {
		params.Set("start", start.Format(time.DateOnly))
	}
	if !end.IsZero() {
		params.Set("end", end.Format(time.DateOnly))
	}
	if b, ok := domain.RegionsBound(q.Regions); ok {
		params.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()))
	}

	var resp scenesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/scenes?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}

	scenes := make([]domain.Scene, 0, len(resp.Scenes))
	for _, s := range resp.Scenes {
		if !q.Includes(s.ID) {
			continue
		}
		scene := domain.Scene{ID: s.ID}
		if len(s.Footprint) == 4 {
			scene.Footprint = &orb.Bound{
				Min: orb.Point{s.Footprint[0], s.Footprint[1]},
				Max: orb.Point{s.Footprint[2], s.Footprint[3]},
			}
		}
		scenes = append(scenes, scene)
	}
	return domain.FilterScenes(scenes, q.Regions), nil
}

// Sample requests the zonal mean of one band over one region. A null value in
// the response means no valid pixel.
func (c *Client) Sample(ctx context.Context, req domain.SampleRequest) (float64, bool, error) {
	body := sampleRequest{
		Collection: req.Collection,
		SceneID:    req.Scene.ID,
		Band:       req.Variable.Band,
		Scale:      req.Variable.Factor(),
		Resolution: req.Resolution,
		Geometry:   geojson.NewGeometry(req.Region.Polygon()),
		Reducer:    "mean",
	}
	if req.Mask != nil {
		body.Mask = &maskSpec{Kind: req.Mask.Kind(), AuxBands: req.Mask.AuxBands(), Params: req.Mask}
	}

	var resp sampleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/zonal-mean", body, &resp); err != nil {
		return 0, false, err
	}
	if resp.Value == nil {
		return 0, false, nil
	}
	return *resp.Value, true, nil
}

// do performs one API call, retrying throttling and server errors with
// exponential backoff. Other 4xx responses fail immediately.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		start := time.Now()
		err := c.roundTrip(ctx, method, path, payload, out)
		c.metrics.ZonalAPIDuration.Observe(time.Since(start).Seconds())
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.ZonalRequests.WithLabelValues("retry").Inc()
		c.logger.Warn("zonal request failed, retrying", "path", path, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		c.metrics.ZonalRequests.WithLabelValues("error").Inc()
		return err
	}
	c.metrics.ZonalRequests.WithLabelValues("success").Inc()
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("zonal API error: status %d: %s", resp.StatusCode, b)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return backoff.Permanent(fmt.Errorf("zonal API error: status %d: %s", resp.StatusCode, b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Zonal API wire types.

type scenesResponse struct {
	Scenes []sceneItem `json:"scenes"`
}

type sceneItem struct {
	ID        string    `json:"id"`
	Footprint []float64 `json:"footprint"` // [minLon, minLat, maxLon, maxLat]
}

type sampleRequest struct {
	Collection string            `json:"collection"`
	SceneID    string            `json:"scene_id"`
	Band       string            `json:"band"`
	Scale      float64           `json:"scale"`
	Resolution float64           `json:"resolution"`
	Reducer    string            `json:"reducer"`
	Mask       *maskSpec         `json:"mask,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

type maskSpec struct {
	Kind     string   `json:"kind"`
	AuxBands []string `json:"aux_bands,omitempty"`
	Params   any      `json:"params,omitempty"`
}

type sampleResponse struct {
	Value *float64 `json:"value"`
}
