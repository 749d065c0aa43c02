package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockYouthwebServer is a fake Youthweb deployment serving both the OAuth2
// token endpoint and a handful of API resources. Protected resources require
// "Authorization: Bearer <token>".
type MockYouthwebServer struct {
	Server *httptest.Server

	ClientID string // expected client_id on code exchange
	Code     string // authorization code accepted by the token endpoint
	Expires  int    // expires_in seconds of the issued token

	mu             sync.Mutex
	token          string
	statusCode     int
	errorBody      string
	requestCount   int
	lastAuthHeader string
}

// SetupMockYouthwebServer starts a mock server that is closed when the test
// ends.
func SetupMockYouthwebServer(t *testing.T) *MockYouthwebServer {
	t.Helper()

	mock := &MockYouthwebServer{
		ClientID:   "client-id",
		Code:       "test-code",
		Expires:    3600,
		token:      "test-access-token",
		statusCode: http.StatusOK,
	}

	router := http.NewServeMux()

	router.HandleFunc("POST /auth/access_token", mock.handleToken)

	router.HandleFunc("GET /me", mock.protected(func(w http.ResponseWriter, r *http.Request) {
		WriteDocument(w, userDocument("123456", "Testuser"))
	}))
	router.HandleFunc("GET /users/{id}", mock.protected(func(w http.ResponseWriter, r *http.Request) {
		WriteDocument(w, userDocument(r.PathValue("id"), "user"+r.PathValue("id")))
	}))
	router.HandleFunc("GET /posts/{id}", mock.protected(func(w http.ResponseWriter, r *http.Request) {
		WriteDocument(w, map[string]any{
			"data": map[string]any{
				"type":       "posts",
				"id":         r.PathValue("id"),
				"attributes": map[string]any{"title": "Post " + r.PathValue("id")},
			},
		})
	}))
	router.HandleFunc("GET /stats/{id}", mock.public(func(w http.ResponseWriter, r *http.Request) {
		WriteDocument(w, map[string]any{
			"data": map[string]any{
				"type":       "stats",
				"id":         r.PathValue("id"),
				"attributes": map[string]any{"user_total": 5503, "user_online": 9},
			},
		})
	}))

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)

	return mock
}

// URL is the base URL of the server, usable as both API and auth domain.
func (m *MockYouthwebServer) URL() string {
	return m.Server.URL
}

// Token is the access token issued by, and accepted by, the server.
func (m *MockYouthwebServer) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// SetToken changes the accepted access token, invalidating any issued
// earlier.
func (m *MockYouthwebServer) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// FailWith makes every API resource respond with status and body. A status
// of 200 restores normal responses.
func (m *MockYouthwebServer) FailWith(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = status
	m.errorBody = body
}

// RequestCount is the number of API resource requests received.
func (m *MockYouthwebServer) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastAuthHeader is the Authorization header of the most recent API resource
// request.
func (m *MockYouthwebServer) LastAuthHeader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuthHeader
}

func (m *MockYouthwebServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.PostForm.Get("grant_type") != "authorization_code" ||
		r.PostForm.Get("client_id") != m.ClientID ||
		r.PostForm.Get("code") != m.Code {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"The authorization code is invalid"}`))
		return
	}

	WriteJSON(w, map[string]any{
		"access_token": m.Token(),
		"token_type":   "Bearer",
		"expires_in":   m.Expires,
	})
}

func (m *MockYouthwebServer) public(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCount++
		m.lastAuthHeader = r.Header.Get("Authorization")
		status, body := m.statusCode, m.errorBody
		m.mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/vnd.api+json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}

		next(w, r)
	}
}

func (m *MockYouthwebServer) protected(next http.HandlerFunc) http.HandlerFunc {
	return m.public(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+m.Token() {
			w.Header().Set("Content-Type", "application/vnd.api+json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"status":"401","title":"Unauthorized","detail":"Detailed error message"}]}`))
			return
		}

		next(w, r)
	})
}

func userDocument(id, username string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"type":       "users",
			"id":         id,
			"attributes": map[string]any{"username": username},
		},
	}
}

// WriteJSON writes payload as application/json.
func WriteJSON(w http.ResponseWriter, payload any) {
	writeEncoded(w, "application/json", payload)
}

// WriteDocument writes payload as a JSON:API document.
func WriteDocument(w http.ResponseWriter, payload any) {
	writeEncoded(w, "application/vnd.api+json", payload)
}

func writeEncoded(w http.ResponseWriter, contentType string, payload any) {
	w.Header().Set("Content-Type", contentType)
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
