package server

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/iho/microloan/internal/adapter/grpc/middleware"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// Config holds the optional cross-cutting pieces of the gRPC server.
type Config struct {
	// Authenticator enables bearer token auth when set.
	Authenticator    middleware.Authenticator
	IdempotencyStore usecase.IdempotencyStore
	Logger           zerolog.Logger
}

// capabilities mirrors the role checks of the HTTP routes.
var capabilities = map[string]func(domain.Role) bool{
	FullMethod("CreateLoan"):        domain.Role.CanEdit,
	FullMethod("GetLoan"):           domain.Role.CanViewPayments,
	FullMethod("ListLoans"):         domain.Role.CanViewPayments,
	FullMethod("PayInstallment"):    domain.Role.CanEdit,
	FullMethod("SubmitPrepayment"):  domain.Role.CanSubmitProof,
	FullMethod("ConfirmPrepayment"): domain.Role.CanEdit,
	FullMethod("RejectPrepayment"):  domain.Role.CanEdit,
	FullMethod("CancelLoan"):        domain.Role.CanEdit,
	FullMethod("Reschedule"):        domain.Role.CanReschedule,
	FullMethod("ReconcileLoan"):     domain.Role.CanViewPayments,
}

// NewServer builds a grpc.Server serving the loan service and the standard
// health service.
func NewServer(loans LoanServiceServer, cfg Config) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.LoggingInterceptor(cfg.Logger),
		middleware.RecoveryInterceptor(cfg.Logger),
	}
	if cfg.Authenticator != nil {
		interceptors = append(interceptors,
			middleware.AuthInterceptor(cfg.Authenticator, FullMethod("Quote")),
			middleware.CapabilityInterceptor(capabilities),
		)
	}
	if cfg.IdempotencyStore != nil {
		interceptors = append(interceptors, middleware.IdempotencyInterceptor(cfg.IdempotencyStore, cfg.Logger, mutatingMethods))
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	s.RegisterService(&LoanServiceDesc, loans)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthSrv)

	return s
}
