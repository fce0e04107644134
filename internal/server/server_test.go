package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/metrics"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
	"github.com/peakyragnar/hx-sub001/internal/state"
)

// #region helpers

type stubEstimator struct {
	err error
}

func (s stubEstimator) Run(ctx context.Context, claim string) (*orchestrator.RunResult, error) {
	return nil, s.err
}

func constantClient(p float64) evaluator.Client {
	return evaluator.ClientFunc(func(ctx context.Context, claim string, t evaluator.Template, model string) (evaluator.Sample, error) {
		return evaluator.Sample{
			TemplateID:  t.ID,
			Fingerprint: evaluator.TemplateFingerprint(t, claim),
			ProbTrue:    p,
		}, nil
	})
}

type fixture struct {
	srv   *httptest.Server
	store *state.Store
	reg   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	cfg := orchestrator.DefaultConfig()
	cfg.Bootstrap = 200
	ctrl, err := orchestrator.NewController(cfg, constantClient(0.8), evaluator.DefaultBank(),
		orchestrator.WithSampleCache(store),
		orchestrator.WithMetrics(metrics.New(reg)),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(New(ctrl, store, reg).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, reg: reg}
}

func postEstimate(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/v1/estimate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// #endregion helpers

// #region estimate-tests

func TestEstimate_PersistsRun(t *testing.T) {
	f := newFixture(t)

	resp := postEstimate(t, f.srv.URL, `{"claim": "The Eiffel Tower is in Paris."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decode[orchestrator.RunResult](t, resp)

	assert.Equal(t, orchestrator.ActionStopPass, run.Status())
	assert.InDelta(t, 0.8, run.Final.Prob, 1e-9)
	assert.Len(t, run.Stages, 1)

	stored, err := f.store.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunKey, stored.RunKey)
}

func TestEstimate_BadBody(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{"", "{", `{"claim": "x", "extra": 1}`} {
		resp := postEstimate(t, f.srv.URL, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		assert.Equal(t, CodeBadRequest, decode[ErrorResponse](t, resp).Code)
	}
}

func TestEstimate_EmptyClaimIsUnprocessable(t *testing.T) {
	f := newFixture(t)
	resp := postEstimate(t, f.srv.URL, `{"claim": "   "}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, CodeInvalid, body.Code)
	assert.Equal(t, "claim", body.Field)
}

func TestEstimate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"config", &orchestrator.ConfigError{Field: "plan", Reason: "empty"}, http.StatusUnprocessableEntity, CodeInvalid},
		{"exhaustion", fmt.Errorf("stage 0: %w", &orchestrator.ExhaustionError{TemplateID: 3, Failures: 10, Limit: 10}), http.StatusBadGateway, CodeExhausted},
		{"deadline", fmt.Errorf("stage 1: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, CodeTimeout},
		{"audit", fmt.Errorf("%w: width drift", orchestrator.ErrSnapshotAudit), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := state.NewStoreWithDB(nil)
			srv := httptest.NewServer(New(stubEstimator{err: tt.err}, store, prometheus.NewRegistry()).Handler())
			defer srv.Close()

			resp := postEstimate(t, srv.URL, `{"claim": "c"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Code)
		})
	}
}

func TestEstimate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	resp := postEstimate(t, f.srv.URL, `{"claim": "c"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// #endregion estimate-tests

// #region run-tests

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	run := decode[orchestrator.RunResult](t, postEstimate(t, f.srv.URL, `{"claim": "c"}`))

	resp, err := http.Get(f.srv.URL + "/v1/runs/" + run.RunID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[orchestrator.RunResult](t, resp)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Len(t, got.DecisionLog, 1)

	missing, err := http.Get(f.srv.URL + "/v1/runs/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, missing).Code)
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	for _, claim := range []string{"a", "b", "c"} {
		postEstimate(t, f.srv.URL, fmt.Sprintf(`{"claim": %q}`, claim))
	}

	resp, err := http.Get(f.srv.URL + "/v1/runs?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Runs  []state.RunSummary `json:"runs"`
		Count int                `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "c", body.Runs[0].Claim)

	for _, bad := range []string{"0", "abc", "501"} {
		r, err := http.Get(f.srv.URL + "/v1/runs?limit=" + bad)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, r.StatusCode, "limit=%s", bad)
		r.Body.Close()
	}
}

func TestListRuns_Empty(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := decode[map[string]any](t, resp)
	assert.Equal(t, []any{}, body["runs"])
}

// #endregion run-tests

// #region ops-tests

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	postEstimate(t, f.srv.URL, `{"claim": "c"}`)

	health, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	families, err := f.reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["claimprob_queries_total"])
	assert.True(t, names["claimprob_stage_decisions_total"])
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(stubEstimator{err: errors.New("unused")}, state.NewStoreWithDB(nil), prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}

// #endregion ops-tests
