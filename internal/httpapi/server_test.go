package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-run/atelier/internal/httpapi"
	"github.com/atelier-run/atelier/internal/logging"
	"github.com/atelier-run/atelier/pkg/adapters/memory"
	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/flow"
	"github.com/atelier-run/atelier/pkg/gateway"
	"github.com/atelier-run/atelier/pkg/ledger"
	"github.com/atelier-run/atelier/pkg/ports"
	"github.com/atelier-run/atelier/pkg/registry"
)

type staticStatus string

func (s staticStatus) String() string { return string(s) }

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	led := ledger.New()
	gw := gateway.New(reg, memory.NewStore())
	sink := ports.TransportFunc(func(domain.Command) error { return nil })
	orch := flow.New(reg, led, sink)

	handler := httpapi.NewHandler(gw, led, orch,
		func() httpapi.ChannelStatus { return staticStatus("connected") },
		prometheus.NewRegistry(), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, reg
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["channel"])
}

func TestSnapshot(t *testing.T) {
	srv, reg := newTestServer(t)
	ws := domain.WorkspaceKey{Category: "pre-production", Tab: "story"}
	_, err := reg.AddNode(ws, domain.KindWorker, domain.Position{X: 10, Y: 20})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/v1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc domain.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Contains(t, doc.Workspaces, "pre-production/story")
	assert.Len(t, doc.Workspaces["pre-production/story"].Nodes, 1)
}

func TestFlowStart(t *testing.T) {
	srv, reg := newTestServer(t)
	ws := domain.WorkspaceKey{Category: "pre-production", Tab: "story"}
	flowID, err := reg.AddNode(ws, domain.KindFlow, domain.Position{})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/workspaces/pre-production/story/flows/"+flowID+"/start", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestFlowStart_UnknownNode(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/workspaces/pre-production/story/flows/ghost/start", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
