package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/iho/microloan/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the metadata key for idempotency.
	IdempotencyKeyHeader = "x-idempotency-key"
	idempotencyTTL       = 24 * time.Hour
)

// IdempotencyInterceptor replays the stored response of a repeated mutation.
// Only methods in mutating are checked. Replayed responses are returned as
// json.RawMessage, which the JSON codec writes through unchanged.
func IdempotencyInterceptor(store usecase.IdempotencyStore, logger zerolog.Logger, mutating map[string]bool) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !mutating[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		keys := md.Get(IdempotencyKeyHeader)
		if len(keys) == 0 {
			return handler(ctx, req)
		}
		if keys[0] == "" {
			return nil, status.Error(codes.InvalidArgument, "idempotency key cannot be empty")
		}

		cacheKey := fmt.Sprintf("grpc:%s:%s", info.FullMethod, keys[0])

		reserved, cached, err := store.Reserve(ctx, cacheKey, idempotencyTTL)
		if err != nil {
			logger.Error().Err(err).Str("idempotency_key", keys[0]).Msg("idempotency check failed")
			return nil, status.Error(codes.Internal, "idempotency check failed")
		}
		if !reserved {
			if cached == nil {
				return nil, status.Error(codes.AlreadyExists, "request with this idempotency key is in progress")
			}
			return json.RawMessage(cached), nil
		}

		resp, err := handler(ctx, req)
		if err != nil {
			if rerr := store.Release(ctx, cacheKey); rerr != nil {
				logger.Warn().Err(rerr).Str("idempotency_key", keys[0]).Msg("failed to release idempotency key")
			}
			return resp, err
		}

		body, err := json.Marshal(resp)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to encode idempotent response")
			return resp, nil
		}
		if err := store.Complete(ctx, cacheKey, body, idempotencyTTL); err != nil {
			logger.Warn().Err(err).Str("idempotency_key", keys[0]).Msg("failed to store idempotent response")
		}

		return resp, nil
	}
}
