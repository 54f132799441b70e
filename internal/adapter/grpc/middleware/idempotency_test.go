package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/iho/microloan/internal/adapter/grpc/middleware"
)

const payMethod = "/microloan.v1.LoanService/PayInstallment"

type fakeIdempotencyStore struct {
	reserved  bool
	cached    []byte
	err       error
	calls     int
	completed []byte
	released  bool
	lastKey   string
}

func (f *fakeIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, []byte, error) {
	f.calls++
	f.lastKey = key
	return f.reserved, f.cached, f.err
}

func (f *fakeIdempotencyStore) Complete(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	f.completed = response
	return nil
}

func (f *fakeIdempotencyStore) Release(ctx context.Context, key string) error {
	f.released = true
	return nil
}

func newInterceptor(store *fakeIdempotencyStore) grpc.UnaryServerInterceptor {
	return middleware.IdempotencyInterceptor(store, zerolog.Nop(), map[string]bool{payMethod: true})
}

func keyed(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(middleware.IdempotencyKeyHeader, key))
}

func TestIdempotencyInterceptor_SkipsReadOnlyMethods(t *testing.T) {
	store := &fakeIdempotencyStore{}
	info := &grpc.UnaryServerInfo{FullMethod: "/microloan.v1.LoanService/GetLoan"}

	resp, err := newInterceptor(store)(keyed("k"), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("expected handler to execute, resp=%v err=%v", resp, err)
	}
	if store.calls != 0 {
		t.Fatalf("expected store not to be called for read-only method")
	}
}

func TestIdempotencyInterceptor_NoKey(t *testing.T) {
	store := &fakeIdempotencyStore{}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	if _, err := newInterceptor(store)(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store should not be consulted without a key")
	}
}

func TestIdempotencyInterceptor_FirstRequestStoresResponse(t *testing.T) {
	store := &fakeIdempotencyStore{reserved: true}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	_, err := newInterceptor(store)(keyed("key-1"), nil, info, func(ctx context.Context, req any) (any, error) {
		return map[string]int{"version": 2}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastKey != "grpc:"+payMethod+":key-1" {
		t.Fatalf("unexpected cache key %q", store.lastKey)
	}
	if string(store.completed) != `{"version":2}` {
		t.Fatalf("unexpected stored response %s", store.completed)
	}
}

func TestIdempotencyInterceptor_ReplaysCachedResponse(t *testing.T) {
	store := &fakeIdempotencyStore{cached: []byte(`{"version":2}`)}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	resp, err := newInterceptor(store)(keyed("key-1"), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not execute for duplicate request")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, ok := resp.(json.RawMessage)
	if !ok || string(raw) != `{"version":2}` {
		t.Fatalf("expected cached response, got %#v", resp)
	}
}

func TestIdempotencyInterceptor_InFlight(t *testing.T) {
	store := &fakeIdempotencyStore{}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	_, err := newInterceptor(store)(keyed("key-1"), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not execute while the key is in flight")
		return nil, nil
	})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestIdempotencyInterceptor_ReleasesOnFailure(t *testing.T) {
	store := &fakeIdempotencyStore{reserved: true}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	_, err := newInterceptor(store)(keyed("key-1"), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.FailedPrecondition, "payment too low")
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected handler error, got %v", err)
	}
	if !store.released || store.completed != nil {
		t.Fatalf("expected key released and nothing stored")
	}
}

func TestIdempotencyInterceptor_StoreError(t *testing.T) {
	store := &fakeIdempotencyStore{err: errors.New("redis down")}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	_, err := newInterceptor(store)(keyed("key-1"), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not run when the store fails")
		return nil, nil
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestIdempotencyInterceptor_EmptyKey(t *testing.T) {
	store := &fakeIdempotencyStore{}
	info := &grpc.UnaryServerInfo{FullMethod: payMethod}

	_, err := newInterceptor(store)(keyed(""), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
