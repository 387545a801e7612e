package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testBackend simulates a server whose access token has just expired: the
// first wave of /data requests answers 401, everything after a successful
// refresh answers 200.
type testBackend struct {
	dataAttempts  atomic.Int64
	refreshCalls  atomic.Int64
	refreshStatus int
	refreshDelay  time.Duration

	// barrier holds the first firstWave /data requests until all of them
	// have arrived, so their 401s land on the client simultaneously.
	firstWave int64
	releaseMu sync.Mutex
	arrived   int64
	release   chan struct{}
}

func newTestBackend(firstWave int) *testBackend {
	return &testBackend{
		refreshStatus: http.StatusOK,
		refreshDelay:  200 * time.Millisecond,
		firstWave:     int64(firstWave),
		release:       make(chan struct{}),
	}
}

func (b *testBackend) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		time.Sleep(b.refreshDelay)
		w.WriteHeader(b.refreshStatus)
	})
	mux.HandleFunc("GET /data", func(w http.ResponseWriter, r *http.Request) {
		attempt := b.dataAttempts.Add(1)
		if attempt <= b.firstWave {
			b.releaseMu.Lock()
			b.arrived++
			if b.arrived == b.firstWave {
				close(b.release)
			}
			b.releaseMu.Unlock()
			<-b.release

			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	})
	return httptest.NewServer(mux)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const workers = 8

	backend := newTestBackend(workers)
	server := backend.server()
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct {
				Value string `json:"value"`
			}
			errs[i] = client.Get(context.Background(), "/data", &out)
			if errs[i] == nil && out.Value != "ok" {
				errs[i] = errors.New("unexpected payload")
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}
	if got := backend.dataAttempts.Load(); got != 2*workers {
		t.Fatalf("data attempts = %d, want %d (each request retried once)", got, 2*workers)
	}
}

func TestFailedRefreshRejectsAllWaitersAndFiresCallbackOnce(t *testing.T) {
	const workers = 8

	backend := newTestBackend(workers)
	backend.refreshStatus = http.StatusUnauthorized
	server := backend.server()
	defer server.Close()

	var expiredCalls atomic.Int64
	client, err := New(server.URL, WithSessionExpiredHandler(func() {
		expiredCalls.Add(1)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), "/data", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("request %d error = %v, want ErrSessionExpired", i, err)
		}
	}
	if got := expiredCalls.Load(); got != 1 {
		t.Fatalf("session-expired callback fired %d times, want 1", got)
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}
}

// A request that still sees 401 after a successful refresh must surface the
// 401 instead of refreshing again.
func TestRetriedRequestNeverRefreshesTwice(t *testing.T) {
	var dataAttempts, refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("GET /data", func(w http.ResponseWriter, r *http.Request) {
		dataAttempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = client.Get(context.Background(), "/data", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want APIError 401", err)
	}
	if got := dataAttempts.Load(); got != 2 {
		t.Fatalf("data attempts = %d, want 2", got)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestNon401NeverTriggersRefresh(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("GET /data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = client.Get(context.Background(), "/data", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want APIError 500", err)
	}
	if apiErr.Message != "boom" {
		t.Fatalf("message = %q, want boom", apiErr.Message)
	}
	if got := refreshCalls.Load(); got != 0 {
		t.Fatalf("refresh calls = %d, want 0", got)
	}
}

// A 401 from the refresh endpoint itself must not recurse into another
// refresh attempt.
func TestRefreshPath401IsTerminal(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = client.Post(context.Background(), "/auth/refresh", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want APIError 401", err)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestIndependentClientsDoNotShareRefreshState(t *testing.T) {
	backendA := newTestBackend(1)
	serverA := backendA.server()
	defer serverA.Close()

	backendB := newTestBackend(1)
	serverB := backendB.server()
	defer serverB.Close()

	clientA, err := New(serverA.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clientB, err := New(serverB.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := clientA.Get(context.Background(), "/data", nil); err != nil {
		t.Fatalf("client A: %v", err)
	}
	if err := clientB.Get(context.Background(), "/data", nil); err != nil {
		t.Fatalf("client B: %v", err)
	}

	if got := backendA.refreshCalls.Load(); got != 1 {
		t.Fatalf("backend A refresh calls = %d, want 1", got)
	}
	if got := backendB.refreshCalls.Load(); got != 1 {
		t.Fatalf("backend B refresh calls = %d, want 1", got)
	}
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	if _, err := New("not-a-url"); err == nil {
		t.Fatal("expected error for relative base url")
	}
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
