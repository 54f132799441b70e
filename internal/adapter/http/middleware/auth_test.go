package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iho/microloan/internal/domain"
)

type authenticatorFunc func(token string) (*domain.User, error)

func (f authenticatorFunc) Authenticate(token string) (*domain.User, error) { return f(token) }

func TestAuthMiddleware(t *testing.T) {
	auth := authenticatorFunc(func(token string) (*domain.User, error) {
		if token != "good" {
			return nil, domain.ErrInvalidToken
		}
		return &domain.User{ID: "adv-1", Role: domain.RoleAdvisor}, nil
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *domain.User
			h := AuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = domain.UserFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusOK && (seen == nil || seen.ID != "adv-1") {
				t.Fatalf("expected user in context, got %+v", seen)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	tests := []struct {
		name string
		user *domain.User
		want int
	}{
		{"admin may reschedule", &domain.User{ID: "a", Role: domain.RoleAdmin}, http.StatusOK},
		{"advisor may not", &domain.User{ID: "b", Role: domain.RoleAdvisor}, http.StatusForbidden},
		{"no user", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireCapability(domain.Role.CanReschedule)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/x/reschedule", nil)
			if tt.user != nil {
				req = req.WithContext(domain.ContextWithUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestAuthMiddleware_ErrorIsNotLeaked(t *testing.T) {
	auth := authenticatorFunc(func(string) (*domain.User, error) { return nil, errors.New("secret detail") })
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")

	AuthMiddleware(auth)(http.NotFoundHandler()).ServeHTTP(rr, req)

	if rr.Body.String() != `{"error":"invalid or expired token"}` {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}
