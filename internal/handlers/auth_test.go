package handlers

import (
	"net/http"
	"testing"

	"github.com/nvisust/authserver/types"
)

func validRegisterBody() map[string]string {
	return map[string]string{
		"username":         "newhire",
		"email":            "newhire@example.com",
		"first_name":       "New",
		"last_name":        "Hire",
		"password":         seedPassword,
		"confirm_password": seedPassword,
	}
}

func TestRegisterReturnsTokenPair(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/auth/register", "", validRegisterBody())
	wantStatus(t, resp, http.StatusCreated)

	var pair TokenPairResponse
	decodeBody(t, resp, &pair)

	if pair.User.Username != "newhire" {
		t.Fatalf("username = %q, want %q", pair.User.Username, "newhire")
	}
	if pair.User.Role != types.RoleEmployee {
		t.Fatalf("default role = %q, want %q", pair.User.Role, types.RoleEmployee)
	}
	if !pair.User.IsActive {
		t.Fatalf("new account should be active")
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("expected both tokens in register response")
	}

	// The issued access token must authenticate immediately.
	profileResp := env.do(t, http.MethodGet, "/auth/profile", pair.Access, nil)
	wantStatus(t, profileResp, http.StatusOK)

	var me types.User
	decodeBody(t, profileResp, &me)
	if me.ID != pair.User.ID {
		t.Fatalf("profile id = %d, want %d", me.ID, pair.User.ID)
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	env := newTestEnv(t, nil)

	body := validRegisterBody()
	body["confirm_password"] = "something-else-1"

	resp := env.do(t, http.MethodPost, "/auth/register", "", body)
	wantStatus(t, resp, http.StatusBadRequest)

	errs := fieldErrors(t, resp)
	if errs["confirm_password"] != "Passwords don't match" {
		t.Fatalf("confirm_password error = %q", errs["confirm_password"])
	}
	if env.repo.userCount() != 0 {
		t.Fatalf("no user should be created on validation failure")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(body map[string]string)
		field   string
		message string
	}{
		{
			name:    "missing username",
			mutate:  func(b map[string]string) { b["username"] = "" },
			field:   "username",
			message: "This field is required",
		},
		{
			name:    "invalid email",
			mutate:  func(b map[string]string) { b["email"] = "not-an-email" },
			field:   "email",
			message: "Enter a valid email address",
		},
		{
			name: "short password",
			mutate: func(b map[string]string) {
				b["password"] = "short"
				b["confirm_password"] = "short"
			},
			field:   "password",
			message: "Password must be at least 8 characters",
		},
		{
			name: "numeric password",
			mutate: func(b map[string]string) {
				b["password"] = "12345678"
				b["confirm_password"] = "12345678"
			},
			field:   "password",
			message: "Password cannot be entirely numeric",
		},
		{
			name:    "unknown role",
			mutate:  func(b map[string]string) { b["role"] = "superuser" },
			field:   "role",
			message: "Invalid role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			body := validRegisterBody()
			tt.mutate(body)

			resp := env.do(t, http.MethodPost, "/auth/register", "", body)
			wantStatus(t, resp, http.StatusBadRequest)

			errs := fieldErrors(t, resp)
			if errs[tt.field] != tt.message {
				t.Fatalf("%s error = %q, want %q", tt.field, errs[tt.field], tt.message)
			}
		})
	}
}

func TestRegisterDuplicateFields(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, types.User{Username: "taken", Phone: "+15550001111", IsActive: true})

	tests := []struct {
		name    string
		mutate  func(body map[string]string)
		field   string
		message string
	}{
		{
			name:    "username taken",
			mutate:  func(b map[string]string) { b["username"] = "taken" },
			field:   "username",
			message: "Username already taken",
		},
		{
			name:    "email in use",
			mutate:  func(b map[string]string) { b["email"] = "taken@example.com" },
			field:   "email",
			message: "Email already in use",
		},
		{
			name:    "phone in use",
			mutate:  func(b map[string]string) { b["phone"] = "+15550001111" },
			field:   "phone",
			message: "Phone number already in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validRegisterBody()
			tt.mutate(body)

			resp := env.do(t, http.MethodPost, "/auth/register", "", body)
			wantStatus(t, resp, http.StatusBadRequest)

			errs := fieldErrors(t, resp)
			if errs[tt.field] != tt.message {
				t.Fatalf("%s error = %q, want %q", tt.field, errs[tt.field], tt.message)
			}
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, types.User{Username: "carla", IsActive: true})

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "carla@example.com",
		"password": "wrong-password-1",
	})
	wantStatus(t, resp, http.StatusUnauthorized)
	if msg := errorMessage(t, resp); msg != "Invalid credentials" {
		t.Fatalf("error = %q", msg)
	}

	// Unknown email gets the same response; no account enumeration.
	resp = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": seedPassword,
	})
	wantStatus(t, resp, http.StatusUnauthorized)
	if msg := errorMessage(t, resp); msg != "Invalid credentials" {
		t.Fatalf("error = %q", msg)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, types.User{Username: "dormant", IsActive: false})

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "dormant@example.com",
		"password": seedPassword,
	})
	wantStatus(t, resp, http.StatusUnauthorized)
	if msg := errorMessage(t, resp); msg != "Account is deactivated" {
		t.Fatalf("error = %q", msg)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, types.User{Username: "erin", IsActive: true})
	pair := env.login(t, "erin@example.com")

	resp := env.do(t, http.MethodPost, "/auth/logout", pair.Access, map[string]string{
		"refresh": pair.Refresh,
	})
	wantStatus(t, resp, http.StatusResetContent)

	var parsed map[string]string
	decodeBody(t, resp, &parsed)
	if parsed["message"] != "Successfully logged out" {
		t.Fatalf("message = %q", parsed["message"])
	}

	// The blacklisted refresh token must no longer mint access tokens.
	resp = env.do(t, http.MethodPost, "/token/refresh", "", map[string]string{
		"refresh": pair.Refresh,
	})
	wantStatus(t, resp, http.StatusUnauthorized)
	if msg := errorMessage(t, resp); msg != "Invalid token" {
		t.Fatalf("error = %q", msg)
	}

	// A second logout with the same token is rejected.
	resp = env.do(t, http.MethodPost, "/auth/logout", pair.Access, map[string]string{
		"refresh": pair.Refresh,
	})
	wantStatus(t, resp, http.StatusBadRequest)
	if msg := errorMessage(t, resp); msg != "Invalid token" {
		t.Fatalf("error = %q", msg)
	}
}

func TestLogoutRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"refresh": "whatever"})
	wantStatus(t, resp, http.StatusUnauthorized)
}

func TestLogoutMalformedToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, types.User{Username: "fred", IsActive: true})
	pair := env.login(t, "fred@example.com")

	resp := env.do(t, http.MethodPost, "/auth/logout", pair.Access, map[string]string{
		"refresh": "not-a-jwt",
	})
	wantStatus(t, resp, http.StatusBadRequest)
	if msg := errorMessage(t, resp); msg != "Invalid token" {
		t.Fatalf("error = %q", msg)
	}
}

func TestAccessTokenCannotBeUsedForLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, types.User{Username: "gail", IsActive: true})
	pair := env.login(t, "gail@example.com")

	resp := env.do(t, http.MethodPost, "/auth/logout", pair.Access, map[string]string{
		"refresh": pair.Access,
	})
	wantStatus(t, resp, http.StatusBadRequest)
}
