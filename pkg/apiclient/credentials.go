package apiclient

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	// AccessTokenName and RefreshTokenName are the persisted value names
	// shared with the dashboard's cookie storage.
	AccessTokenName  = "snap.token"
	RefreshTokenName = "snap.refreshToken"

	// CredentialMaxAge is the fixed retention window for stored credentials.
	CredentialMaxAge = 30 * 24 * time.Hour
)

// Credentials is the persisted access/refresh token pair.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// CredentialStore persists the credential pair for one execution context.
// Writes are best-effort, mirroring cookie semantics: a store never fails a
// request, it just comes back empty.
type CredentialStore interface {
	Credentials() Credentials
	Save(credentials Credentials)
	Clear()
}

// MemoryStore is the long-lived in-process store used by an interactive
// context. Stored credentials expire after CredentialMaxAge.
type MemoryStore struct {
	mu          sync.Mutex
	credentials Credentials
	expiresAt   time.Time
	now         func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Credentials returns the stored pair, or the zero pair once expired.
func (store *MemoryStore) Credentials() Credentials {
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.expiresAt.IsZero() && store.now().After(store.expiresAt) {
		store.credentials = Credentials{}
		store.expiresAt = time.Time{}
	}
	return store.credentials
}

// Save replaces the stored pair and restarts the retention window.
func (store *MemoryStore) Save(credentials Credentials) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.credentials = credentials
	store.expiresAt = store.now().Add(CredentialMaxAge)
}

// Clear drops the stored pair.
func (store *MemoryStore) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.credentials = Credentials{}
	store.expiresAt = time.Time{}
}

type filePayload struct {
	Credentials
	ExpiresAtUnixUTC int64 `json:"expiresAtUnixUtc"`
}

// FileStore persists credentials on disk between CLI invocations.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Credentials reads the stored pair; unreadable or expired state yields the
// zero pair.
func (store *FileStore) Credentials() Credentials {
	store.mu.Lock()
	defer store.mu.Unlock()
	raw, err := os.ReadFile(store.path)
	if err != nil {
		return Credentials{}
	}
	var payload filePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Credentials{}
	}
	if payload.ExpiresAtUnixUTC != 0 && store.now().UTC().Unix() > payload.ExpiresAtUnixUTC {
		return Credentials{}
	}
	return payload.Credentials
}

// Save writes the pair with a fresh retention window.
func (store *FileStore) Save(credentials Credentials) {
	store.mu.Lock()
	defer store.mu.Unlock()
	payload := filePayload{
		Credentials:      credentials,
		ExpiresAtUnixUTC: store.now().UTC().Add(CredentialMaxAge).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = os.WriteFile(store.path, raw, 0o600)
}

// Clear removes the stored file.
func (store *FileStore) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	_ = os.Remove(store.path)
}

// RequestStore scopes credentials to a single server-rendered request: reads
// come from the incoming request's cookies, writes go to the outgoing
// response so the interactive context picks them up.
type RequestStore struct {
	mu          sync.Mutex
	credentials Credentials
	writer      http.ResponseWriter
}

// NewRequestStore captures the credential cookies of an incoming request.
// The writer may be nil for read-only use.
func NewRequestStore(writer http.ResponseWriter, request *http.Request) *RequestStore {
	store := &RequestStore{writer: writer}
	if cookie, err := request.Cookie(AccessTokenName); err == nil {
		store.credentials.AccessToken = cookie.Value
	}
	if cookie, err := request.Cookie(RefreshTokenName); err == nil {
		store.credentials.RefreshToken = cookie.Value
	}
	return store
}

// Credentials returns the pair captured from the request, including any
// in-request update.
func (store *RequestStore) Credentials() Credentials {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.credentials
}

// Save updates the in-request pair and sets refreshed cookies on the
// response.
func (store *RequestStore) Save(credentials Credentials) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.credentials = credentials
	store.writeCookie(AccessTokenName, credentials.AccessToken, int(CredentialMaxAge.Seconds()))
	store.writeCookie(RefreshTokenName, credentials.RefreshToken, int(CredentialMaxAge.Seconds()))
}

// Clear drops the in-request pair and expires both cookies.
func (store *RequestStore) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.credentials = Credentials{}
	store.writeCookie(AccessTokenName, "", -1)
	store.writeCookie(RefreshTokenName, "", -1)
}

func (store *RequestStore) writeCookie(name string, value string, maxAge int) {
	if store.writer == nil {
		return
	}
	http.SetCookie(store.writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
	})
}
