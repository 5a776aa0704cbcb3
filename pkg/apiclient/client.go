package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ExecutionContext tells the client whether an interactive session exists.
type ExecutionContext int

const (
	// ContextBrowser is the long-lived interactive context. Unrecoverable
	// auth failures trigger a global sign-out.
	ContextBrowser ExecutionContext = iota

	// ContextServerRender is a per-request context with no session to sign
	// out of. Unrecoverable auth failures surface as ErrAuthToken instead.
	ContextServerRender
)

const (
	refreshTokenPath    = "/sessions/refresh-token"
	expiredTokenMessage = "Invalid JWT token"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	contentTypeHeader   = "Content-Type"
	contentTypeJSON     = "application/json"
)

// Config wires a Client.
type Config struct {
	BaseURL     string
	Execution   ExecutionContext
	Credentials CredentialStore
	Broadcaster *Broadcaster // optional; sign-out signals go here
	HTTPClient  *http.Client // optional; defaults to http.DefaultClient semantics
	Logger      *zap.Logger  // optional
	OnSignOut   func()       // optional; runs after credentials are cleared
}

// Client issues authenticated requests against the backend and transparently
// recovers from access-credential expiry. At most one refresh call is in
// flight at any time; requests that fail with the expiry signature while it
// runs are queued and replayed in arrival order once it resolves.
type Client struct {
	baseURL     string
	execution   ExecutionContext
	credentials CredentialStore
	broadcaster *Broadcaster
	httpClient  *http.Client
	logger      *zap.Logger
	onSignOut   func()

	mu         sync.Mutex
	refreshing bool
	pending    []chan refreshOutcome
}

type refreshOutcome struct {
	token string
	err   error
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Response is the raw outcome of a request the client considers successful.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into target.
func (response *Response) Decode(target any) error {
	return json.Unmarshal(response.Body, target)
}

// NewClient wires a session client for one execution context.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidClientConfig)
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("%w: credential store is required", ErrInvalidClientConfig)
	}
	client := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		execution:   cfg.Execution,
		credentials: cfg.Credentials,
		broadcaster: cfg.Broadcaster,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		onSignOut:   cfg.OnSignOut,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	if client.logger == nil {
		client.logger = zap.NewNop()
	}
	return client, nil
}

// Get issues an authenticated GET.
func (client *Client) Get(ctx context.Context, path string) (*Response, error) {
	return client.Do(ctx, http.MethodGet, path, nil)
}

// Post issues an authenticated POST with a JSON body.
func (client *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return client.Do(ctx, http.MethodPost, path, body)
}

// Put issues an authenticated PUT with a JSON body.
func (client *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return client.Do(ctx, http.MethodPut, path, body)
}

// Delete issues an authenticated DELETE.
func (client *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return client.Do(ctx, http.MethodDelete, path, nil)
}

// Do dispatches the request immediately with whatever access credential is
// currently held. If the server reports the expiry signature, the request
// joins the single in-flight refresh and is replayed with the new token; any
// other failure is terminal. There are no retries beyond the one
// refresh-and-replay.
func (client *Client) Do(ctx context.Context, method string, path string, body any) (*Response, error) {
	accessToken := client.credentials.Credentials().AccessToken
	response, err := client.send(ctx, method, path, body, accessToken)
	if err != nil {
		return nil, err
	}
	if response.StatusCode < http.StatusMultipleChoices {
		return response, nil
	}
	if isExpiredCredential(response) {
		newToken, refreshErr := client.awaitRefresh(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}
		replayed, replayErr := client.send(ctx, method, path, body, newToken)
		if replayErr != nil {
			return nil, replayErr
		}
		if replayed.StatusCode < http.StatusMultipleChoices {
			return replayed, nil
		}
		return nil, client.terminalFailure(replayed)
	}
	return nil, client.terminalFailure(response)
}

// SignOut clears the persisted credentials, notifies other contexts, and runs
// the configured hook. The broadcast is fire-and-forget.
func (client *Client) SignOut() {
	client.credentials.Clear()
	if client.broadcaster != nil {
		client.broadcaster.Broadcast(SignalSignedOut)
	}
	if client.onSignOut != nil {
		client.onSignOut()
	}
	client.logger.Info("session signed out")
}

func (client *Client) terminalFailure(response *Response) error {
	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		if client.execution == ContextServerRender {
			return ErrAuthToken
		}
		client.SignOut()
		return ErrSignedOut
	}
	return &StatusError{StatusCode: response.StatusCode, Message: responseMessage(response)}
}

// awaitRefresh queues the caller behind the single in-flight refresh,
// starting one if none is running. The wait honors ctx, but an abandoned
// refresh still runs to completion for the remaining waiters.
func (client *Client) awaitRefresh(ctx context.Context) (string, error) {
	waiter := make(chan refreshOutcome, 1)
	client.mu.Lock()
	client.pending = append(client.pending, waiter)
	alreadyRefreshing := client.refreshing
	client.refreshing = true
	client.mu.Unlock()

	if !alreadyRefreshing {
		go client.refresh()
	}

	select {
	case outcome := <-waiter:
		return outcome.token, outcome.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (client *Client) refresh() {
	storedRefreshToken := client.credentials.Credentials().RefreshToken

	var outcome refreshOutcome
	response, err := client.send(context.Background(), http.MethodPost, refreshTokenPath, refreshRequest{RefreshToken: storedRefreshToken}, "")
	switch {
	case err != nil:
		outcome.err = fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	case response.StatusCode >= http.StatusMultipleChoices:
		outcome.err = fmt.Errorf("%w: status %d", ErrRefreshFailed, response.StatusCode)
	default:
		var payload refreshResponse
		if decodeErr := response.Decode(&payload); decodeErr != nil {
			outcome.err = fmt.Errorf("%w: %v", ErrRefreshFailed, decodeErr)
		} else {
			client.credentials.Save(Credentials{AccessToken: payload.Token, RefreshToken: payload.RefreshToken})
			outcome.token = payload.Token
		}
	}

	client.mu.Lock()
	waiters := client.pending
	client.pending = nil
	client.refreshing = false
	client.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- outcome
	}

	if outcome.err != nil {
		client.logger.Warn("credential refresh failed", zap.Error(outcome.err), zap.Int("queued_requests", len(waiters)))
		if client.execution == ContextBrowser {
			client.SignOut()
		}
		return
	}
	client.logger.Debug("credential refreshed", zap.Int("queued_requests", len(waiters)))
}

func (client *Client) send(ctx context.Context, method string, path string, body any, token string) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(raw)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		request.Header.Set(contentTypeHeader, contentTypeJSON)
	}
	if token != "" {
		request.Header.Set(authorizationHeader, bearerPrefix+token)
	}
	httpResponse, err := client.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResponse.Body.Close() }()
	raw, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: httpResponse.StatusCode, Body: raw}, nil
}

// isExpiredCredential matches the server's specific expiry signature; other
// 401 causes carry a different message and must not trigger a refresh.
func isExpiredCredential(response *Response) bool {
	return response.StatusCode == http.StatusUnauthorized && responseMessage(response) == expiredTokenMessage
}

func responseMessage(response *Response) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(response.Body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
