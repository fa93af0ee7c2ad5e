package syncworker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/org/mdmagent/internal/mdmclient"
	"github.com/org/mdmagent/internal/storage"
	"github.com/org/mdmagent/pkg/models"
)

// fakeServer is a management server with scripted answers.
type fakeServer struct {
	*httptest.Server

	mu         sync.Mutex
	gate       string
	gateCode   int
	uploadCode int
	gateCalls  int
	uploads    [][]byte
}

func newFakeServer(t *testing.T, gate string) *fakeServer {
	t.Helper()
	fs := &fakeServer{gate: gate, gateCode: http.StatusOK, uploadCode: http.StatusOK}
	r := chi.NewRouter()
	r.Get("/{project}/rest/plugins/{feature}/public/enabled/{device}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.gateCalls++
		w.WriteHeader(fs.gateCode)
		_, _ = io.WriteString(w, fs.gate)
	})
	r.Post("/{project}/rest/plugins/{plugin}/public/submit/{device}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.uploads = append(fs.uploads, body)
		w.WriteHeader(fs.uploadCode)
	})
	fs.Server = httptest.NewServer(r)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) setUploadCode(code int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.uploadCode = code
}

func (fs *fakeServer) GateCalls() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.gateCalls
}

func (fs *fakeServer) Uploads() [][]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([][]byte(nil), fs.uploads...)
}

func (fs *fakeServer) client(t *testing.T) *mdmclient.Client {
	t.Helper()
	c, err := mdmclient.New(
		mdmclient.Endpoint{BaseURL: fs.URL},
		mdmclient.Device{Project: "acme", DeviceID: "dev-1"},
		mdmclient.Options{Logger: zerolog.Nop()},
	)
	require.NoError(t, err)
	return c
}

// deadServer returns a client whose server refuses connections.
func deadServer(t *testing.T) *mdmclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := mdmclient.New(
		mdmclient.Endpoint{BaseURL: url},
		mdmclient.Device{Project: "acme", DeviceID: "dev-1"},
		mdmclient.Options{Logger: zerolog.Nop()},
	)
	require.NoError(t, err)
	return c
}

func decodeCalls(t *testing.T, body []byte) []models.CallLogRecord {
	t.Helper()
	var out []models.CallLogRecord
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

// memBackend is an in-memory watermark store, call log and location source.
type memBackend struct {
	mu        sync.Mutex
	marks     map[string]int64
	calls     []models.CallLogRecord
	location  *models.Location
	readErr   error
	commitErr error
	sourceErr error
	advances  int
}

func newMemBackend(calls ...models.CallLogRecord) *memBackend {
	return &memBackend{marks: map[string]int64{}, calls: calls}
}

func (m *memBackend) GetWatermark(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.marks[name], nil
}

func (m *memBackend) AdvanceWatermark(_ context.Context, name string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.advances++
	if ts > m.marks[name] {
		m.marks[name] = ts
	}
	return nil
}

func (m *memBackend) mark(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[name]
}

func (m *memBackend) CallLogsSince(_ context.Context, since int64) ([]models.CallLogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sourceErr != nil {
		return nil, m.sourceErr
	}
	var out []models.CallLogRecord
	for _, c := range m.calls {
		if c.CallTimestamp > since {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallTimestamp < out[j].CallTimestamp })
	return out, nil
}

func (m *memBackend) LatestLocation(context.Context) (*models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.location == nil {
		return nil, storage.ErrNotFound
	}
	return m.location, nil
}

var errBoom = errors.New("boom")
