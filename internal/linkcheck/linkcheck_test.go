package linkcheck

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/resolver"
	"github.com/nao1215/pdfaudit/internal/transport"
)

// newTestValidator returns a validator with short delays suitable for tests.
func newTestValidator(t *testing.T, maxRedirects int, opts ...Option) *Validator {
	t.Helper()
	client, err := transport.NewClient(transport.Options{MaxRedirects: maxRedirects})
	if err != nil {
		t.Fatal(err)
	}
	base := []Option{WithTimeout(2 * time.Second), WithRetries(1, time.Millisecond)}
	return NewValidator(client.NewHTTPClient(), append(base, opts...)...)
}

// methodRecorder records the methods a handler has seen.
type methodRecorder struct {
	mu      sync.Mutex
	methods []string
}

func (m *methodRecorder) record(r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, r.Method)
}

func (m *methodRecorder) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.methods, ",")
}

func mustKey(t *testing.T, raw string) string {
	t.Helper()
	key, err := resolver.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// TestValidatorClassification tests the mapping from responses to statuses.
func TestValidatorClassification(t *testing.T) {
	t.Parallel()

	rec := &methodRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/no-head", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc("/not-modified", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	v := newTestValidator(t, 10)

	tests := []struct {
		path string
		want model.LinkStatus
	}{
		{"/ok", model.OK()},
		{"/old", model.Redirected(srv.URL + "/new")},
		{"/missing", model.Invalid(404)},
		{"/gone", model.Invalid(410)},
		{"/no-head", model.OK()},
		{"/not-modified", model.OK()},
		{"/ok#section", model.OK()},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, err := v.Check(t.Context(), mustKey(t, srv.URL+tt.path))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	t.Run("GET fallback after rejected HEAD", func(t *testing.T) {
		t.Parallel()
		r := &methodRecorder{}
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.record(req)
			if req.Method == http.MethodHead {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(s.Close)

		got, err := v.Check(t.Context(), mustKey(t, s.URL+"/"))
		if err != nil {
			t.Fatal(err)
		}
		if got != model.OK() || r.String() != "HEAD,GET" {
			t.Errorf("got %v with methods %s", got, r.String())
		}
	})
}

// TestValidatorTimeout tests that a timeout is retried exactly once.
func TestValidatorTimeout(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	v := newTestValidator(t, 10, WithTimeout(200*time.Millisecond), WithRetries(1, 10*time.Millisecond))

	got, err := v.Check(t.Context(), mustKey(t, srv.URL+"/slow"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.Unreachable(model.ReasonTimeout) {
		t.Errorf("expected Unreachable(timeout), got %v", got)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("expected exactly 2 requests, got %d", n)
	}
}

// TestValidatorTransientStatus tests retrying of 503 responses.
func TestValidatorTransientStatus(t *testing.T) {
	t.Parallel()

	t.Run("recovers on retry", func(t *testing.T) {
		t.Parallel()
		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if requests.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		got, err := newTestValidator(t, 10).Check(t.Context(), mustKey(t, srv.URL))
		if err != nil {
			t.Fatal(err)
		}
		if got != model.OK() || requests.Load() != 2 {
			t.Errorf("got %v after %d requests", got, requests.Load())
		}
	})

	t.Run("stays invalid", func(t *testing.T) {
		t.Parallel()
		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		got, err := newTestValidator(t, 10).Check(t.Context(), mustKey(t, srv.URL))
		if err != nil {
			t.Fatal(err)
		}
		if got != model.Invalid(503) || requests.Load() != 2 {
			t.Errorf("got %v after %d requests", got, requests.Load())
		}
	})

	t.Run("404 is not retried", func(t *testing.T) {
		t.Parallel()
		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		if _, err := newTestValidator(t, 10).Check(t.Context(), mustKey(t, srv.URL)); err != nil {
			t.Fatal(err)
		}
		if requests.Load() != 1 {
			t.Errorf("expected 1 request, got %d", requests.Load())
		}
	})
}

// TestValidatorUnreachable tests network failures.
func TestValidatorUnreachable(t *testing.T) {
	t.Parallel()

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		ln.Close()

		v := newTestValidator(t, 10, WithRetries(0, 0))
		got, err := v.Check(t.Context(), "http://"+addr+"/")
		if err != nil {
			t.Fatal(err)
		}
		if got != model.Unreachable(model.ReasonRefused) {
			t.Errorf("expected Unreachable(connection refused), got %v", got)
		}
	})

	t.Run("redirect loop", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
		}))
		t.Cleanup(srv.Close)

		got, err := newTestValidator(t, 3).Check(t.Context(), mustKey(t, srv.URL+"/a"))
		if err != nil {
			t.Fatal(err)
		}
		if got != model.Unreachable(model.ReasonRedirectLimit) {
			t.Errorf("expected Unreachable(too many redirects), got %v", got)
		}
	})
}

// TestValidatorCancellation tests that cancellation abandons the check.
func TestValidatorCancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		<-started
		cancel()
	}()

	got, err := newTestValidator(t, 10, WithTimeout(10*time.Second)).Check(ctx, mustKey(t, srv.URL))
	if !errors.Is(err, ErrAbandoned) {
		t.Fatalf("expected ErrAbandoned, got %v (%v)", err, got)
	}
	if got.Terminal() {
		t.Errorf("abandoned check must not carry a terminal status, got %v", got)
	}
}

// TestClassifyError tests error classification without the network.
func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		reason    string
		transient bool
	}{
		{"deadline", context.DeadlineExceeded, model.ReasonTimeout, true},
		{"dns not found", &net.DNSError{Err: "no such host", Name: "x.invalid", IsNotFound: true}, model.ReasonDNS, false},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", Name: "x.test", IsTemporary: true}, model.ReasonDNS, true},
		{"redirects", transport.ErrRedirectLimit, model.ReasonRedirectLimit, false},
		{"other", errors.New("boom"), model.ReasonConnection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, transient := classifyError(tt.err)
			if status != model.Unreachable(tt.reason) || transient != tt.transient {
				t.Errorf("classifyError(%v) = %v, %v; want %s, %v", tt.err, status, transient, tt.reason, tt.transient)
			}
		})
	}
}

// TestRetryDelays tests backoff doubling.
func TestRetryDelays(t *testing.T) {
	t.Parallel()

	got := RetryDelays(3, time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, got[i], want[i])
		}
	}
	if RetryDelays(0, time.Second) != nil {
		t.Error("zero retries must give no delays")
	}
}

// TestHostLimiter tests per-host rate limiting.
func TestHostLimiter(t *testing.T) {
	t.Parallel()

	t.Run("unlimited by default", func(t *testing.T) {
		t.Parallel()
		l := NewHostLimiter(0, nil)
		if l.limiterFor("example.com") != nil {
			t.Error("expected no limiter for zero rate")
		}
		if err := l.Wait(t.Context(), "example.com"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("override applies per host", func(t *testing.T) {
		t.Parallel()
		l := NewHostLimiter(0, func(host string) float64 {
			if host == "slow.example" {
				return 2
			}
			return 0
		})
		if l.limiterFor("fast.example") != nil {
			t.Error("fast host must be unlimited")
		}
		if l.limiterFor("slow.example") == nil {
			t.Fatal("slow host must be limited")
		}
		if l.limiterFor("slow.example") != l.limiterFor("slow.example") {
			t.Error("limiter must be reused per host")
		}
	})

	t.Run("spaces requests", func(t *testing.T) {
		t.Parallel()
		l := NewHostLimiter(20, nil)
		start := time.Now()
		for range 3 {
			if err := l.Wait(t.Context(), "example.com"); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
			t.Errorf("expected waits to be spaced, took %v", elapsed)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		l := NewHostLimiter(0.001, nil)
		_ = l.Wait(t.Context(), "example.com")
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		if err := l.Wait(ctx, "example.com"); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

// TestValidatorRateLimitDeadline tests that a limiter wait which cannot
// finish before the deadline yields a status instead of abandoning the link.
func TestValidatorRateLimitDeadline(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	limiter := NewHostLimiter(0.001, nil)
	v := newTestValidator(t, 5, WithLimiter(limiter))
	key := mustKey(t, srv.URL+"/page")

	first, err := v.Check(t.Context(), key)
	if err != nil {
		t.Fatal(err)
	}
	if first.Kind != model.StatusOK {
		t.Fatalf("first check = %s, want Ok", first.Label())
	}

	ctx, cancel := context.WithTimeout(t.Context(), time.Minute)
	defer cancel()
	got, err := v.Check(ctx, key)
	if err != nil {
		t.Fatalf("expected a status, got error %v", err)
	}
	if got.Kind != model.StatusUnreachable || got.Reason != model.ReasonTimeout {
		t.Errorf("status = %s, want Unreachable(%s)", got.Label(), model.ReasonTimeout)
	}
	if ctx.Err() != nil {
		t.Error("limiter must not wait for the deadline")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

// memoryCache is an in-memory Cache for tests.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]model.LinkStatus
	stores  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]model.LinkStatus)}
}

func (m *memoryCache) Lookup(_ context.Context, key string, _ time.Duration) (model.LinkStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[key]
	return s, ok, nil
}

func (m *memoryCache) Store(_ context.Context, key string, status model.LinkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = status
	m.stores++
	return nil
}

// TestCachedChecker tests cache reuse and the no-unreachable rule.
func TestCachedChecker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	results := map[string]model.LinkStatus{
		"http://a.example/": model.Invalid(404),
		"http://b.example/": model.Unreachable(model.ReasonDNS),
	}
	next := CheckerFunc(func(_ context.Context, key string) (model.LinkStatus, error) {
		calls.Add(1)
		return results[key], nil
	})

	cache := newMemoryCache()
	cache.entries["http://c.example/"] = model.OK()
	checker := NewCachedChecker(next, cache, time.Hour, nil)

	if got, _ := checker.Check(t.Context(), "http://c.example/"); got != model.OK() || calls.Load() != 0 {
		t.Errorf("expected cache hit, got %v with %d calls", got, calls.Load())
	}

	if got, _ := checker.Check(t.Context(), "http://a.example/"); got != model.Invalid(404) {
		t.Errorf("unexpected status %v", got)
	}
	if cache.entries["http://a.example/"] != model.Invalid(404) {
		t.Error("invalid result must be stored")
	}

	if got, _ := checker.Check(t.Context(), "http://b.example/"); got.Kind != model.StatusUnreachable {
		t.Errorf("unexpected status %v", got)
	}
	if _, ok := cache.entries["http://b.example/"]; ok {
		t.Error("unreachable result must not be stored")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 network checks, got %d", calls.Load())
	}
}
