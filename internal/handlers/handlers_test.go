package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nvisust/authserver/internal/services"
	"github.com/nvisust/authserver/internal/storage"
	"github.com/nvisust/authserver/internal/store"
	"github.com/nvisust/authserver/internal/tokens"
	"github.com/nvisust/authserver/types"
	"golang.org/x/crypto/bcrypt"
)

const seedPassword = "orange-crate-9"

// fakeUserRepo is an in-memory UserRepository for handler tests.
type fakeUserRepo struct {
	mu       sync.Mutex
	nextID   int
	users    map[int]types.User
	profiles map[int]types.UserProfile
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		nextID:   1,
		users:    map[int]types.User{},
		profiles: map[int]types.UserProfile{},
	}
}

func (f *fakeUserRepo) withProfile(user types.User) types.User {
	if profile, ok := f.profiles[user.ID]; ok {
		copied := profile
		user.Profile = &copied
	}
	return user
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return f.withProfile(user), nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return f.withProfile(user), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			return f.withProfile(user), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) ExistsUsername(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) ExistsPhone(ctx context.Context, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Phone != "" && user.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) List(ctx context.Context) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]types.User, 0, len(f.users))
	for id := 1; id < f.nextID; id++ {
		if user, ok := f.users[id]; ok {
			users = append(users, f.withProfile(user))
		}
	}
	return users, nil
}

func (f *fakeUserRepo) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := []types.User{}
	for id := 1; id < f.nextID; id++ {
		if user, ok := f.users[id]; ok && user.Role == role {
			users = append(users, f.withProfile(user))
		}
	}
	return users, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == user.Username || strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
		if user.Phone != "" && existing.Phone == user.Phone {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if user.Phone != "" {
		for id, other := range f.users {
			if id != user.ID && other.Phone == user.Phone {
				return types.User{}, store.ErrConflict
			}
		}
	}
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.Role = user.Role
	existing.Phone = user.Phone
	existing.Department = user.Department
	existing.IsActive = user.IsActive
	f.users[user.ID] = existing
	return f.withProfile(existing), nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	delete(f.profiles, id)
	return nil
}

func (f *fakeUserRepo) UpsertProfile(ctx context.Context, userID int, profile types.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[userID] = profile
	return nil
}

func (f *fakeUserRepo) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type testEnv struct {
	repo   *fakeUserRepo
	tokens *tokens.Manager
	server *httptest.Server
}

// newTestEnv wires the handlers onto a router the same way the server
// does and serves them from httptest. avatars may be nil.
func newTestEnv(t *testing.T, avatars *storage.Avatars) *testEnv {
	t.Helper()

	repo := newFakeUserRepo()
	userService := services.NewUserService(repo)
	manager := tokens.NewManager("test-secret", "authserver-test", 15*time.Minute, time.Hour, tokens.NewMemoryBlacklist())

	authMiddleware := NewAuthMiddleware(manager, userService)
	authHandler := NewAuthHandler(userService, manager, nil)
	userHandler := NewUserHandler(userService, authHandler, nil)
	profileHandler := NewProfileHandler(userService, userHandler, avatars)
	tokenHandler := NewTokenHandler(manager)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authHandler, authMiddleware)
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, userHandler, authMiddleware)
		})
		r.Route("/profile", func(r chi.Router) {
			ProfileRouter(r, profileHandler, authMiddleware)
		})
	})
	router.Route("/token", func(r chi.Router) {
		TokenRouter(r, tokenHandler)
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{repo: repo, tokens: manager, server: ts}
}

// seedUser inserts a user directly into the repository with the shared
// seed password. Missing email and name fields get defaults.
func (e *testEnv) seedUser(t *testing.T, user types.User) types.User {
	t.Helper()

	if user.Email == "" {
		user.Email = user.Username + "@example.com"
	}
	if user.FirstName == "" {
		user.FirstName = "Test"
	}
	if user.LastName == "" {
		user.LastName = "User"
	}
	if user.Role == "" {
		user.Role = types.DefaultRole
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash seed password: %v", err)
	}
	user.PasswordHash = string(hashed)

	created, err := e.repo.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("seed user %q: %v", user.Username, err)
	}
	return created
}

func (e *testEnv) login(t *testing.T, email string) TokenPairResponse {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": seedPassword,
	})
	wantStatus(t, resp, http.StatusOK)

	var pair TokenPairResponse
	decodeBody(t, resp, &pair)
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("login for %q returned incomplete token pair", email)
	}
	return pair
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, strings.TrimSpace(string(body)))
	}
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func fieldErrors(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	var parsed FieldErrorResponse
	decodeBody(t, resp, &parsed)
	return parsed.Errors
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var parsed ErrorResponse
	decodeBody(t, resp, &parsed)
	return parsed.Error
}
