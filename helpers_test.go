package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmichie/umrahdesk/client"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testCSRFKey = "32-byte-auth-key-testing-key-32!"

// testDB represents a test database instance
type testDB struct {
	Container *postgres.PostgresContainer
	DB        *DB
}

// setupTestDB starts a Postgres container and applies the migrations.
func setupTestDB(t *testing.T) *testDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	db, err := NewDB(connStr)
	if err != nil {
		t.Fatalf("failed to connect to test database: %s", err)
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	return &testDB{
		Container: pgContainer,
		DB:        db,
	}
}

// teardown closes the database connection and stops the container
func (tdb *testDB) teardown(t *testing.T) {
	t.Helper()

	if err := tdb.DB.Close(); err != nil {
		t.Errorf("failed to close database: %s", err)
	}

	if err := tdb.Container.Terminate(context.Background()); err != nil {
		t.Errorf("failed to terminate container: %s", err)
	}
}

// memorySessions is an in-memory SessionRepository.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[uuid.UUID]Session)}
}

func (m *memorySessions) CreateSession(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *memorySessions) GetSession(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (m *memorySessions) UpdateSessionPermissions(_ context.Context, id uuid.UUID, perms PermissionSet, user PortalUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Permissions = perms
	sess.IsSuperuser = user.IsSuperuser
	sess.IsStaff = user.IsStaff
	m.sessions[id] = sess
	return nil
}

func (m *memorySessions) DeleteSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memorySessions) CleanupExpiredSessions(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sess := range m.sessions {
		if !sess.ExpiresAt.After(time.Now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memorySessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type fakeAgencyUser struct {
	password    string
	user        client.User
	permissions []string
}

// fakeAgency emulates the agency API over HTTP so tests exercise the real
// client, including the OAuth2 password grant.
type fakeAgency struct {
	mu              sync.Mutex
	users           map[string]*fakeAgencyUser
	tokens          map[string]string
	bookings        map[string]map[string]interface{}
	hotels          []map[string]interface{}
	foodPrices      []map[string]interface{}
	ziaratPrices    []map[string]interface{}
	failPermissions bool
	hotelCalls      atomic.Int32
	permissionCalls atomic.Int32
	server          *httptest.Server
}

func newFakeAgency(t *testing.T) *fakeAgency {
	t.Helper()
	f := &fakeAgency{
		users: map[string]*fakeAgencyUser{
			"agent@example.com": {
				password: "secret",
				user:     client.User{ID: 1, Email: "agent@example.com", FirstName: "Ayesha"},
				permissions: []string{
					"view_booking_agent_portal",
					"add_booking_agent_portal",
					"view_hotel_agent_portal",
				},
			},
			"viewer@example.com": {
				password:    "secret",
				user:        client.User{ID: 2, Email: "viewer@example.com"},
				permissions: []string{"view_invoice_agent_portal"},
			},
			"nobody@example.com": {
				password: "secret",
				user:     client.User{ID: 3, Email: "nobody@example.com"},
			},
			"admin@example.com": {
				password: "secret",
				user:     client.User{ID: 4, Email: "admin@example.com", IsSuperuser: true, IsStaff: true},
			},
			"staff@example.com": {
				password:    "secret",
				user:        client.User{ID: 5, Email: "staff@example.com", IsStaff: true},
				permissions: []string{"view_booking_admin_portal", "view_booking_agent_portal"},
			},
		},
		tokens:   make(map[string]string),
		bookings: map[string]map[string]interface{}{"981": decodePayload(t, sampleBookingJSON)},
		hotels: []map[string]interface{}{
			{"id": 12, "name": "Makkah Towers", "prices": []interface{}{
				map[string]interface{}{"room_type": "sharing", "price": 100},
				map[string]interface{}{"room_type": "double", "price": 500},
			}},
		},
		foodPrices:   []map[string]interface{}{{"id": 5, "adult_price": 50, "child_price": 30}},
		ziaratPrices: []map[string]interface{}{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token/", f.handleToken)
	mux.HandleFunc("GET /api/user-permissions/", f.handlePermissions)
	mux.HandleFunc("GET /api/bookings/{id}/", f.handleBooking)
	mux.HandleFunc("GET /api/hotels/", func(w http.ResponseWriter, r *http.Request) {
		f.hotelCalls.Add(1)
		f.serveList(w, r, map[string]interface{}{"count": len(f.hotels), "results": f.hotels})
	})
	mux.HandleFunc("GET /api/food-prices/", func(w http.ResponseWriter, r *http.Request) {
		f.serveList(w, r, f.foodPrices)
	})
	mux.HandleFunc("GET /api/ziarat-prices/", func(w http.ResponseWriter, r *http.Request) {
		f.serveList(w, r, f.ziaratPrices)
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAgency) setPermissions(email string, perms ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].permissions = perms
}

func (f *fakeAgency) setFailPermissions(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPermissions = fail
}

func (f *fakeAgency) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "password" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	u, ok := f.users[r.Form.Get("username")]
	if !ok || u.password != r.Form.Get("password") {
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
		return
	}
	token := "tok-" + uuid.NewString()
	f.tokens[token] = u.user.Email
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (f *fakeAgency) authorize(r *http.Request) (*fakeAgencyUser, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.tokens[token]
	if !ok {
		return nil, false
	}
	return f.users[email], true
}

func (f *fakeAgency) handlePermissions(w http.ResponseWriter, r *http.Request) {
	f.permissionCalls.Add(1)
	u, ok := f.authorize(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	fail := f.failPermissions
	resp := client.PermissionsResponse{
		Permissions: append([]string{}, u.permissions...),
		User:        u.user,
	}
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeAgency) handleBooking(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authorize(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	booking, ok := f.bookings[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(booking)
}

func (f *fakeAgency) serveList(w http.ResponseWriter, r *http.Request, body interface{}) {
	if _, ok := f.authorize(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func testConfig(agencyURL string) *Config {
	return &Config{
		Addr:             ":0",
		Environment:      "test",
		DatabaseURL:      "postgres://unused",
		AgencyAPIURL:     agencyURL,
		AgencyClientID:   "umrahdesk-test",
		CSRFAuthKey:      testCSRFKey,
		AllowedOrigins:   []string{"http://localhost:3000"},
		SessionTTL:       time.Hour,
		TokenTTL:         15 * time.Minute,
		CatalogTTL:       time.Minute,
		CatalogCacheSize: 16,
		KnownResources:   DefaultKnownResources,
		CurrencyPolicy:   AlwaysPKR,
	}
}

// newTestServer wires a server to the fake agency API and in-memory sessions.
func newTestServer(t *testing.T, agency *fakeAgency) (*Server, *memorySessions) {
	t.Helper()
	sessions := newMemorySessions()
	srv, err := newServer(testConfig(agency.server.URL), sessions, nil,
		client.NewClient(agency.server.URL, "umrahdesk-test"))
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, sessions
}

// doRequest calls the router directly, skipping CSRF.
func doRequest(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&bodyReader).Encode(body))
	}

	req := httptest.NewRequest(method, path, &bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, srv *Server, email string) LoginResponse {
	t.Helper()
	w := doRequest(t, srv, http.MethodPost, "/auth/login", "", LoginRequest{Email: email, Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func serveRecorder(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	return w
}
