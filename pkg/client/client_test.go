package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/procsched/internal/scheduler"
	"github.com/loykin/procsched/internal/server"
)

type stubWorker struct {
	pid  int
	done chan struct{}
	once sync.Once
}

func (w *stubWorker) PID() int        { return w.pid }
func (w *stubWorker) Stop() error     { return nil }
func (w *stubWorker) Continue() error { return nil }
func (w *stubWorker) Terminate(context.Context) error {
	w.once.Do(func() { close(w.done) })
	return nil
}
func (w *stubWorker) Done() <-chan struct{} { return w.done }
func (w *stubWorker) ExitErr() error        { return nil }

func newAPI(t *testing.T, capacity int, tlsServer bool) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := scheduler.New(scheduler.Options{
		Capacity: capacity,
		Launcher: scheduler.LauncherFunc(func(_ context.Context, id int) (scheduler.Worker, error) {
			return &stubWorker{pid: 900 + id, done: make(chan struct{})}, nil
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	h := server.NewRouter(s, "/api").Handler()
	var ts *httptest.Server
	if tlsServer {
		ts = httptest.NewTLSServer(h)
	} else {
		ts = httptest.NewServer(h)
	}
	t.Cleanup(ts.Close)
	return ts.URL + "/api"
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(Config{BaseURL: newAPI(t, 3, false) + "/"})
	require.True(t, c.IsReachable(ctx))

	res, err := c.Create(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Created)
	assert.Equal(t, 1, res.Overflow)
	assert.Equal(t, 1, res.Started)

	res, err = c.Create(ctx, 1)
	require.NoError(t, err, "a full table is reported in the result")
	assert.Empty(t, res.Created)
	assert.Equal(t, 1, res.Overflow)

	ws, err := c.Workers(ctx, true)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	assert.Equal(t, "Running", ws[0].State)
	assert.Equal(t, 901, ws[0].PID)

	require.NoError(t, c.Kill(ctx, 3))
	err = c.Kill(ctx, 3)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "already terminated")

	err = c.Resume(ctx, 2)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	require.NoError(t, c.Interrupt(ctx))
	require.Eventually(t, func() bool {
		ws, err := c.Workers(ctx, false)
		return err == nil && ws[0].State == "Suspended"
	}, 2*time.Second, 10*time.Millisecond)

	ids, err := c.ResumeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
}

func TestClientMode(t *testing.T) {
	ctx := context.Background()
	c := New(Config{BaseURL: newAPI(t, 10, false)})

	m, err := c.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "FCFS", m.Mode)

	m, err = c.SetRoundRobin(ctx, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeInfo{Mode: "RoundRobin", Quantum: "3s"}, m)

	_, err = c.SetRoundRobin(ctx, 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	m, err = c.SetFCFS(ctx)
	require.NoError(t, err)
	assert.Equal(t, "FCFS", m.Mode)
}

func TestClientInsecureTLS(t *testing.T) {
	c := New(Config{BaseURL: newAPI(t, 10, true), Insecure: true})
	_, err := c.Mode(context.Background())
	require.NoError(t, err)

	strict := New(Config{BaseURL: newAPI(t, 10, true), TLS: &TLSClientConfig{Enabled: true}})
	_, err = strict.Mode(context.Background())
	assert.Error(t, err, "self-signed certificate must be rejected")
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Workers(context.Background(), false)
	assert.Error(t, err)
}

func TestSetupClientTLSMissingCA(t *testing.T) {
	_, err := setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: "/nonexistent/ca.crt"}})
	assert.Error(t, err)
}
