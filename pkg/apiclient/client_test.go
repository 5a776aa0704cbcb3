package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	staleAccessToken    = "stale-access-token"
	freshAccessToken    = "fresh-access-token"
	seedRefreshToken    = "seed-refresh-token"
	rotatedRefreshToken = "rotated-refresh-token"
	clientsPath         = "/clients"
	otherUnauthorized   = "Invalid session"
)

// sessionBackend is a scripted stand-in for the REST backend: it accepts one
// access token, reports the expiry signature for anything else, and lets the
// test hold the refresh endpoint open until the queue is fully populated.
type sessionBackend struct {
	server         *httptest.Server
	refreshCalls   atomic.Int32
	refreshFails   bool
	releaseRefresh chan struct{}

	mu          sync.Mutex
	seenBearers []string
}

func newSessionBackend(test *testing.T) *sessionBackend {
	test.Helper()
	backend := &sessionBackend{releaseRefresh: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc(refreshTokenPath, func(writer http.ResponseWriter, request *http.Request) {
		backend.refreshCalls.Add(1)
		<-backend.releaseRefresh
		if backend.refreshFails {
			writer.WriteHeader(http.StatusInternalServerError)
			return
		}
		writer.Header().Set(contentTypeHeader, contentTypeJSON)
		_ = json.NewEncoder(writer).Encode(refreshResponse{Token: freshAccessToken, RefreshToken: rotatedRefreshToken})
	})
	mux.HandleFunc(clientsPath, func(writer http.ResponseWriter, request *http.Request) {
		bearer := request.Header.Get(authorizationHeader)
		backend.mu.Lock()
		backend.seenBearers = append(backend.seenBearers, bearer)
		backend.mu.Unlock()
		if bearer != bearerPrefix+freshAccessToken {
			writer.Header().Set(contentTypeHeader, contentTypeJSON)
			writer.WriteHeader(http.StatusUnauthorized)
			_, _ = writer.Write([]byte(`{"message":"` + expiredTokenMessage + `"}`))
			return
		}
		writer.Header().Set(contentTypeHeader, contentTypeJSON)
		_, _ = writer.Write([]byte(`[]`))
	})
	backend.server = httptest.NewServer(mux)
	test.Cleanup(backend.server.Close)
	return backend
}

func (backend *sessionBackend) bearersSeen() []string {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return append([]string(nil), backend.seenBearers...)
}

func newSeededStore() *MemoryStore {
	store := NewMemoryStore()
	store.Save(Credentials{AccessToken: staleAccessToken, RefreshToken: seedRefreshToken})
	return store
}

func mustNewClient(test *testing.T, cfg Config) *Client {
	test.Helper()
	client, err := NewClient(cfg)
	if err != nil {
		test.Fatalf("client init failed: %v", err)
	}
	return client
}

func waitForQueuedWaiters(test *testing.T, client *Client, want int) {
	test.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		client.mu.Lock()
		queued := len(client.pending)
		client.mu.Unlock()
		if queued == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	test.Fatalf("expected %d queued waiters before releasing the refresh", want)
}

func TestConcurrentExpiriesCoalesceOntoOneRefresh(test *testing.T) {
	backend := newSessionBackend(test)
	store := newSeededStore()
	client := mustNewClient(test, Config{
		BaseURL:     backend.server.URL,
		Execution:   ContextBrowser,
		Credentials: store,
	})

	const concurrentRequests = 6
	results := make(chan error, concurrentRequests)
	for index := 0; index < concurrentRequests; index++ {
		go func() {
			_, err := client.Get(context.Background(), clientsPath)
			results <- err
		}()
	}

	waitForQueuedWaiters(test, client, concurrentRequests)
	close(backend.releaseRefresh)

	for index := 0; index < concurrentRequests; index++ {
		if err := <-results; err != nil {
			test.Fatalf("request %d failed: %v", index, err)
		}
	}
	if calls := backend.refreshCalls.Load(); calls != 1 {
		test.Fatalf("expected exactly one refresh call, got %d", calls)
	}
	saved := store.Credentials()
	if saved.AccessToken != freshAccessToken || saved.RefreshToken != rotatedRefreshToken {
		test.Fatalf("expected rotated credential pair to be persisted, got %+v", saved)
	}
}

func TestQueuedRequestsReplayWithNewToken(test *testing.T) {
	backend := newSessionBackend(test)
	client := mustNewClient(test, Config{
		BaseURL:     backend.server.URL,
		Execution:   ContextBrowser,
		Credentials: newSeededStore(),
	})

	const concurrentRequests = 3
	results := make(chan error, concurrentRequests)
	for index := 0; index < concurrentRequests; index++ {
		go func() {
			_, err := client.Get(context.Background(), clientsPath)
			results <- err
		}()
	}
	waitForQueuedWaiters(test, client, concurrentRequests)
	close(backend.releaseRefresh)
	for index := 0; index < concurrentRequests; index++ {
		if err := <-results; err != nil {
			test.Fatalf("request %d failed: %v", index, err)
		}
	}

	replayed := 0
	for _, bearer := range backend.bearersSeen() {
		switch bearer {
		case bearerPrefix + freshAccessToken:
			replayed++
		case bearerPrefix + staleAccessToken:
		default:
			test.Fatalf("unexpected bearer header %q", bearer)
		}
	}
	if replayed != concurrentRequests {
		test.Fatalf("expected %d replays with the new token, got %d", concurrentRequests, replayed)
	}
}

func TestRefreshFailureFailsQueueAndSignsOutOnce(test *testing.T) {
	backend := newSessionBackend(test)
	backend.refreshFails = true
	store := newSeededStore()
	broadcaster := NewBroadcaster()
	signals, cancelSubscription := broadcaster.Subscribe()
	defer cancelSubscription()

	var signOutCalls atomic.Int32
	client := mustNewClient(test, Config{
		BaseURL:     backend.server.URL,
		Execution:   ContextBrowser,
		Credentials: store,
		Broadcaster: broadcaster,
		OnSignOut:   func() { signOutCalls.Add(1) },
	})

	const concurrentRequests = 4
	results := make(chan error, concurrentRequests)
	for index := 0; index < concurrentRequests; index++ {
		go func() {
			_, err := client.Get(context.Background(), clientsPath)
			results <- err
		}()
	}
	waitForQueuedWaiters(test, client, concurrentRequests)
	close(backend.releaseRefresh)

	for index := 0; index < concurrentRequests; index++ {
		if err := <-results; !errors.Is(err, ErrRefreshFailed) {
			test.Fatalf("request %d: expected ErrRefreshFailed, got %v", index, err)
		}
	}
	if calls := backend.refreshCalls.Load(); calls != 1 {
		test.Fatalf("expected exactly one refresh call, got %d", calls)
	}

	deadline := time.Now().Add(2 * time.Second)
	for signOutCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if calls := signOutCalls.Load(); calls != 1 {
		test.Fatalf("expected exactly one sign-out, got %d", calls)
	}
	if stored := store.Credentials(); stored != (Credentials{}) {
		test.Fatalf("expected cleared credentials, got %+v", stored)
	}
	select {
	case signal := <-signals:
		if signal != SignalSignedOut {
			test.Fatalf("expected SignalSignedOut, got %v", signal)
		}
	case <-time.After(2 * time.Second):
		test.Fatalf("expected a signed-out broadcast")
	}
}

func TestOtherUnauthorizedSignsOutInBrowserContext(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		_, _ = writer.Write([]byte(`{"message":"` + otherUnauthorized + `"}`))
	}))
	defer server.Close()

	store := newSeededStore()
	var signOutCalls atomic.Int32
	client := mustNewClient(test, Config{
		BaseURL:     server.URL,
		Execution:   ContextBrowser,
		Credentials: store,
		OnSignOut:   func() { signOutCalls.Add(1) },
	})

	_, err := client.Get(context.Background(), clientsPath)
	if !errors.Is(err, ErrSignedOut) {
		test.Fatalf("expected ErrSignedOut, got %v", err)
	}
	if calls := signOutCalls.Load(); calls != 1 {
		test.Fatalf("expected one sign-out, got %d", calls)
	}
	if stored := store.Credentials(); stored != (Credentials{}) {
		test.Fatalf("expected cleared credentials, got %+v", stored)
	}
}

func TestOtherUnauthorizedRejectsWithAuthTokenErrorInServerRenderContext(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		_, _ = writer.Write([]byte(`{"message":"` + otherUnauthorized + `"}`))
	}))
	defer server.Close()

	store := newSeededStore()
	client := mustNewClient(test, Config{
		BaseURL:     server.URL,
		Execution:   ContextServerRender,
		Credentials: store,
		OnSignOut:   func() { test.Fatalf("sign-out must not run in a server-render context") },
	})

	_, err := client.Get(context.Background(), clientsPath)
	if !errors.Is(err, ErrAuthToken) {
		test.Fatalf("expected ErrAuthToken, got %v", err)
	}
	if stored := store.Credentials(); stored.AccessToken != staleAccessToken {
		test.Fatalf("server-render context must not clear credentials, got %+v", stored)
	}
}

func TestClientErrorsPassThroughUntouched(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		statusCode int
		message    string
	}{
		{name: "bad request", statusCode: http.StatusBadRequest, message: "name is required"},
		{name: "conflict", statusCode: http.StatusConflict, message: "slug already taken"},
		{name: "server error", statusCode: http.StatusInternalServerError, message: ""},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			var refreshCalls atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc(refreshTokenPath, func(writer http.ResponseWriter, request *http.Request) {
				refreshCalls.Add(1)
			})
			mux.HandleFunc(clientsPath, func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(testCase.statusCode)
				if testCase.message != "" {
					_ = json.NewEncoder(writer).Encode(map[string]string{"message": testCase.message})
				}
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			client := mustNewClient(test, Config{
				BaseURL:     server.URL,
				Execution:   ContextBrowser,
				Credentials: newSeededStore(),
				OnSignOut:   func() { test.Fatalf("sign-out must not run for a generic client error") },
			})

			_, err := client.Get(context.Background(), clientsPath)
			var statusError *StatusError
			if !errors.As(err, &statusError) {
				test.Fatalf("expected StatusError, got %v", err)
			}
			if statusError.StatusCode != testCase.statusCode || statusError.Message != testCase.message {
				test.Fatalf("unexpected status error: %+v", statusError)
			}
			if calls := refreshCalls.Load(); calls != 0 {
				test.Fatalf("expected no refresh attempts, got %d", calls)
			}
		})
	}
}

func TestSuccessfulRequestUsesHeldToken(test *testing.T) {
	test.Parallel()
	var seenBearer string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		seenBearer = request.Header.Get(authorizationHeader)
		_, _ = writer.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := mustNewClient(test, Config{
		BaseURL:     server.URL,
		Execution:   ContextBrowser,
		Credentials: newSeededStore(),
	})
	response, err := client.Get(context.Background(), clientsPath)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		test.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if seenBearer != bearerPrefix+staleAccessToken {
		test.Fatalf("expected optimistic dispatch with the held token, got %q", seenBearer)
	}
}

func TestNewClientValidatesConfig(test *testing.T) {
	test.Parallel()
	if _, err := NewClient(Config{Credentials: NewMemoryStore()}); !errors.Is(err, ErrInvalidClientConfig) {
		test.Fatalf("expected ErrInvalidClientConfig for missing base url, got %v", err)
	}
	if _, err := NewClient(Config{BaseURL: "http://localhost:3333"}); !errors.Is(err, ErrInvalidClientConfig) {
		test.Fatalf("expected ErrInvalidClientConfig for missing store, got %v", err)
	}
}
