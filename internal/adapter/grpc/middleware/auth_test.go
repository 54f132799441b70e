package middleware_test

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/iho/microloan/internal/adapter/grpc/middleware"
	"github.com/iho/microloan/internal/domain"
)

type stubAuthenticator struct {
	users map[string]*domain.User
}

func (s stubAuthenticator) Authenticate(token string) (*domain.User, error) {
	u, ok := s.users[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return u, nil
}

func TestAuthInterceptor(t *testing.T) {
	t.Parallel()

	advisor := &domain.User{ID: "adv-1", Role: domain.RoleAdvisor}
	interceptor := middleware.AuthInterceptor(
		stubAuthenticator{users: map[string]*domain.User{"good": advisor}},
		"/microloan.v1.LoanService/Quote",
	)
	info := &grpc.UnaryServerInfo{FullMethod: "/microloan.v1.LoanService/GetLoan"}
	mustNotRun := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	t.Run("missing metadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, info, mustNotRun)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected unauthenticated, got %v", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "x"))
		_, err := interceptor(ctx, nil, info, mustNotRun)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected unauthenticated, got %v", err)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer invalid"))
		_, err := interceptor(ctx, nil, info, mustNotRun)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected unauthenticated for invalid token, got %v", err)
		}
	})

	t.Run("public method", func(t *testing.T) {
		resp, err := interceptor(context.Background(), nil,
			&grpc.UnaryServerInfo{FullMethod: "/microloan.v1.LoanService/Quote"},
			func(ctx context.Context, req any) (any, error) { return "quote", nil })
		if err != nil || resp != "quote" {
			t.Fatalf("public method should bypass auth, resp=%v err=%v", resp, err)
		}
	})

	t.Run("valid token injects user", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer good"))

		called := false
		resp, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			called = true
			got, ok := domain.UserFromContext(ctx)
			if !ok {
				t.Fatal("expected user in context")
			}
			if got.ID != advisor.ID || got.Role != advisor.Role {
				t.Fatalf("unexpected user %+v", got)
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called || resp != "ok" {
			t.Fatalf("expected handler to execute, resp=%v called=%v", resp, called)
		}
	})
}

func TestCapabilityInterceptor(t *testing.T) {
	t.Parallel()

	const reschedule = "/microloan.v1.LoanService/Reschedule"
	interceptor := middleware.CapabilityInterceptor(map[string]func(domain.Role) bool{
		reschedule: domain.Role.CanReschedule,
	})
	handler := func(ctx context.Context, req any) (any, error) { return "allowed", nil }

	tests := []struct {
		name   string
		ctx    context.Context
		method string
		want   codes.Code
	}{
		{"admin may reschedule", domain.ContextWithUser(context.Background(), &domain.User{ID: "a", Role: domain.RoleAdmin}), reschedule, codes.OK},
		{"advisor may not reschedule", domain.ContextWithUser(context.Background(), &domain.User{ID: "b", Role: domain.RoleAdvisor}), reschedule, codes.PermissionDenied},
		{"missing user", context.Background(), reschedule, codes.Unauthenticated},
		{"unguarded method", context.Background(), "/microloan.v1.LoanService/GetLoan", codes.OK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)
			if status.Code(err) != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
