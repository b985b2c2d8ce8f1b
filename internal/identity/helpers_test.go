package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Clark-Hu/universal-rate/internal/domain"
	"github.com/Clark-Hu/universal-rate/internal/logging"
)

// memCache is an in-process cache.Cache recording TTLs.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	fail bool
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errors.New("cache down")
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

// upstreamServer serves canned responses keyed by path and counts requests.
type upstreamServer struct {
	*httptest.Server
	hits     atomic.Int64
	lastReq  atomic.Value
	handlers map[string]http.HandlerFunc
}

func newUpstreamServer(t *testing.T, handlers map[string]http.HandlerFunc) *upstreamServer {
	t.Helper()
	s := &upstreamServer{handlers: handlers}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.lastReq.Store(r.Clone(context.Background()))
		h, ok := s.handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *upstreamServer) last() *http.Request {
	r, _ := s.lastReq.Load().(*http.Request)
	return r
}

func writeJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func writeStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func testOptions(baseURL string, c *memCache) Options {
	return Options{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
		Cache:   c,
		Logger:  logging.Nop(),
	}
}

// fakeProvider scripts provider answers and counts calls.
type fakeProvider struct {
	name      string
	usernames map[string]int64
	casts     map[string]int64
	profiles  map[int64]domain.Profile
	err       error // returned for every call when set
	failFIDs  map[int64]error
	calls     atomic.Int64
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) UsernameToID(_ context.Context, handle string) (int64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	if fid, ok := f.usernames[normalizeUsername(handle)]; ok {
		return fid, nil
	}
	return 0, ErrNotFound
}

func (f *fakeProvider) CastURLToAuthorID(_ context.Context, castURL string) (int64, error) {
	f.calls.Add(1)
	if f.casts == nil {
		return 0, ErrUnsupported
	}
	if f.err != nil {
		return 0, f.err
	}
	if fid, ok := f.casts[castURL]; ok {
		return fid, nil
	}
	return 0, ErrNotFound
}

func (f *fakeProvider) ProfileByID(_ context.Context, fid int64) (domain.Profile, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.Profile{}, f.err
	}
	if err, ok := f.failFIDs[fid]; ok {
		return domain.Profile{}, err
	}
	if p, ok := f.profiles[fid]; ok {
		return p, nil
	}
	return domain.Profile{}, ErrNotFound
}
