package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chameleonhttp "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/http"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/shadowlog"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *httptest.Server
	client *chameleonhttp.Client
	eng    *engine.Engine
	shadow *shadowlog.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	wf := &domain.Workflow{
		Name: "tickets",
		Locations: []domain.Location{
			{ID: "inbox", Role: "triager", Policy: &domain.RoutingPolicy{
				Name: "triage",
				Branches: []domain.Branch{
					{Condition: "severity >", Destination: "oncall"},
					{Condition: "severity >= 3", Destination: "oncall"},
					{Default: true, Destination: "closed"},
				},
			}},
			{ID: "oncall", Role: "engineer", Policy: &domain.RoutingPolicy{
				Name:     "fix",
				Branches: []domain.Branch{{Condition: "fixed == true", Destination: "closed"}},
			}},
			{ID: "closed", Role: "archivist", Terminal: true},
		},
	}

	streams := chameleonhttp.NewStreamManager(nil)
	shadow := shadowlog.New(32)
	svc := persistence.NewService(memory.NewStore(), persistence.WithHooks(streams.Hooks()))
	eng, err := engine.New(svc, wf, engine.WithRouter(guard.NewRoutingGuard(nil, guard.WithShadowLog(shadow))))
	require.NoError(t, err)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	})
	server, err := chameleonhttp.NewServer(eng,
		chameleonhttp.WithShadowLog(shadow),
		chameleonhttp.WithStreams(streams),
		chameleonhttp.WithMetricsHandler(metrics),
		chameleonhttp.WithVersion("1.2.3"),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, client: chameleonhttp.NewClient(srv.URL), eng: eng, shadow: shadow}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(respBody)
}

func TestSpec_IsValid(t *testing.T) {
	doc, err := chameleonhttp.GetSwagger()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Info.Version)
	assert.NotNil(t, doc.Paths.Value("/v1/uows/{uowId}/submit"))
}

func TestServer_Meta(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	_, body = f.get(t, "/info")
	assert.Contains(t, body, `"version":"1.2.3"`)

	resp, body = f.get(t, "/openapi.yaml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "openapi: 3.0.3")

	_, body = f.get(t, "/metrics")
	assert.Equal(t, "# metrics\n", body)
}

func TestServer_WorkerFlowOverClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.client.CreateRoot(ctx, "inbox", map[string]any{"severity": 4}, "reported")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, root.Status)

	triager := worker.NewAuto("t-1", "triager", func(context.Context, *domain.UOW) (worker.Result, error) {
		return worker.Result{Rationale: "looked at it"}, nil
	})
	worked, err := worker.NewRunner(f.client, triager).RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, worked)

	u, err := f.client.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "oncall", u.Location)
	assert.Equal(t, domain.StatusPending, u.Status)

	claimed, err := f.client.Claim(ctx, "engineer", "e-1")
	require.NoError(t, err)
	_, err = f.client.Heartbeat(ctx, claimed.ID, "e-1")
	require.NoError(t, err)
	res, err := f.client.Submit(ctx, engine.SubmitRequest{UOWID: claimed.ID, WorkerID: "e-1", Result: map[string]any{"fixed": true}})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeFinalized, res.Outcome)
	assert.Equal(t, "closed", res.UOW.Location)

	history, err := f.client.History(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, history, 6)

	resp, body := f.get(t, "/v1/uows/"+root.ID+"/chain")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"valid":true`)

	resp, body = f.get(t, "/v1/uows/"+root.ID+"/integrity")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"is_valid":true`)
}

func TestServer_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Claim(ctx, "triager", "t-1")
	assert.ErrorIs(t, err, domain.ErrNoWork)

	_, err = f.client.Get(ctx, "missing")
	var apiErr *chameleonhttp.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.ErrorIs(t, err, domain.ErrUOWNotFound)

	root, err := f.client.CreateRoot(ctx, "inbox", nil, "")
	require.NoError(t, err)

	_, err = f.client.Heartbeat(ctx, root.ID, "nobody")
	assert.ErrorIs(t, err, domain.ErrOwnershipConflict)

	resp, body := f.post(t, "/v1/uows/"+root.ID+"/finalize", `{"rationale":"too early"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, chameleonhttp.CodeIllegalTransition)

	_, err = f.client.CreateRoot(ctx, "nowhere", nil, "")
	assert.ErrorIs(t, err, domain.ErrUnknownLocation)

	resp, _ = f.get(t, "/v1/uows/"+root.ID+"/audit")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RequestValidation(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/v1/claims", `{"role":"triager"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, chameleonhttp.CodeInvalidRequest)

	resp, _ = f.post(t, "/v1/uows", `{"location": 42}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.get(t, "/v1/shadow-log?kind=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.get(t, "/v1/shadow-log?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ShadowLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.client.CreateRoot(ctx, "inbox", map[string]any{"severity": 1}, "")
	require.NoError(t, err)
	claimed, err := f.client.Claim(ctx, "triager", "t-1")
	require.NoError(t, err)
	_, err = f.client.Submit(ctx, engine.SubmitRequest{UOWID: claimed.ID, WorkerID: "t-1"})
	require.NoError(t, err)

	resp, body := f.get(t, "/v1/shadow-log?uow_id="+root.ID+"&kind=syntax&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []shadowlog.Entry
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "severity >", entries[0].Expression)

	_, body = f.get(t, "/v1/shadow-log?uow_id=other")
	assert.JSONEq(t, `[]`, body)
}

func TestServer_Rejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateRoot(ctx, "inbox", map[string]any{"severity": 5}, "")
	require.NoError(t, err)
	c, err := f.client.Claim(ctx, "triager", "t-1")
	require.NoError(t, err)
	_, err = f.client.Submit(ctx, engine.SubmitRequest{UOWID: c.ID, WorkerID: "t-1"})
	require.NoError(t, err)

	c, err = f.client.Claim(ctx, "engineer", "e-1")
	require.NoError(t, err)
	res, err := f.client.Submit(ctx, engine.SubmitRequest{UOWID: c.ID, WorkerID: "e-1", Result: map[string]any{"fixed": false}})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeRejected, res.Outcome)
	assert.Equal(t, domain.StatusFailed, res.UOW.Status)

	resp, body := f.post(t, "/v1/uows/"+c.ID+"/remediate", `{"worker_id":"fixer","attributes":{"fixed":true}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"status":"ACTIVE"`)
}

func TestServer_Events(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.eng.CreateRoot(ctx, "inbox", map[string]any{"severity": 1}, "")
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.srv.URL+"/v1/events?uow_id="+root.ID+"&watch=status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	_, err = f.eng.Claim(ctx, "triager", "t-1")
	require.NoError(t, err)

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	var ev chameleonhttp.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, root.ID, ev.UOWID)
	assert.Equal(t, domain.EventTransition, ev.Event)
	require.NotNil(t, ev.Diff.Status)
	assert.Equal(t, domain.StatusActive, *ev.Diff.Status)
}
