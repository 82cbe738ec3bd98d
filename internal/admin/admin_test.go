package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matst80/unirelay/internal/proto"
)

type fakeState struct {
	active     int
	cluster    int
	clusterErr error
}

func (f *fakeState) Identifier() string { return "5f1a1c1e-0000-4000-8000-000000000001" }
func (f *fakeState) ActiveConnectionCount() int { return f.active }
func (f *fakeState) Uptime() time.Duration { return 90 * time.Second }
func (f *fakeState) ClusterConnectionCount(context.Context) (int, error) {
	return f.cluster, f.clusterErr
}

func newTestServer(t *testing.T, st RelayState, ready func() bool) *httptest.Server {
	t.Helper()
	relay := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(NewRouter(Options{
		Path:        "/unicom",
		Version:     "test",
		CarrierHost: "wo.10010.com",
		State:       st,
		Ready:       ready,
	}, relay))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, &fakeState{active: 2, cluster: 5}, nil)
	resp, body := get(t, srv.URL+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st proto.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, 2, st.Connections)
	assert.Equal(t, 5, st.ClusterConnections)
	assert.Equal(t, int64(90), st.Uptime)
	assert.True(t, strings.HasSuffix(st.Memory.RSS, " MB"))
	assert.True(t, strings.HasSuffix(st.Memory.HeapUsed, " MB"))
	assert.Equal(t, "test", st.Version)
}

func TestStatusClusterFallback(t *testing.T) {
	srv := newTestServer(t, &fakeState{active: 3, clusterErr: errors.New("down")}, nil)
	_, body := get(t, srv.URL+"/status")
	var st proto.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, 3, st.ClusterConnections)
}

func TestConfig(t *testing.T) {
	srv := newTestServer(t, &fakeState{active: 1}, nil)
	_, body := get(t, srv.URL+"/config")
	var c proto.Config
	require.NoError(t, json.Unmarshal([]byte(body), &c))
	assert.Equal(t, "/unicom", c.Path)
	assert.Equal(t, "active", c.Status)
	assert.Equal(t, 1, c.Connections)
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), c.Host)
}

func TestClientConfigPage(t *testing.T) {
	srv := newTestServer(t, &fakeState{}, nil)
	resp, body := get(t, srv.URL+"/client-config")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "vmess://")
	assert.Contains(t, body, "wo.10010.com")
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, &fakeState{active: 4}, nil)
	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/unicom")
	assert.Contains(t, body, "1m30s")
}

func TestRelayMountedAtPath(t *testing.T) {
	srv := newTestServer(t, &fakeState{}, nil)
	resp, _ := get(t, srv.URL+"/unicom")
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestProbes(t *testing.T) {
	var ready atomic.Bool
	srv := newTestServer(t, &fakeState{}, ready.Load)

	resp, _ := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	ready.Store(true)
	resp, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}
