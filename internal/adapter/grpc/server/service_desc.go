package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/iho/microloan/internal/adapter/http/dto"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "microloan.v1.LoanService"

// FullMethod returns the full method name used by interceptors.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// LoanServiceServer is the server API for the loan service.
type LoanServiceServer interface {
	Quote(context.Context, *dto.TermsRequest) (*dto.QuoteResponse, error)
	CreateLoan(context.Context, *dto.CreateLoanRequest) (*dto.LoanBookResponse, error)
	GetLoan(context.Context, *LoanRef) (*dto.LoanBookResponse, error)
	ListLoans(context.Context, *ListLoansRequest) (*dto.ListResponse[*dto.LoanResponse], error)
	PayInstallment(context.Context, *PayInstallmentRequest) (*dto.LoanBookResponse, error)
	SubmitPrepayment(context.Context, *SubmitPrepaymentRequest) (*dto.LoanBookResponse, error)
	ConfirmPrepayment(context.Context, *ConfirmPrepaymentRequest) (*dto.LoanBookResponse, error)
	RejectPrepayment(context.Context, *RejectPrepaymentRequest) (*dto.LoanBookResponse, error)
	CancelLoan(context.Context, *CancelLoanRequest) (*dto.LoanBookResponse, error)
	Reschedule(context.Context, *RescheduleRequest) (*dto.LoanBookResponse, error)
	ReconcileLoan(context.Context, *LoanRef) (*dto.ReconciliationResponse, error)
}

// LoanServiceDesc describes the loan service for grpc.Server.RegisterService.
var LoanServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LoanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Quote", LoanServiceServer.Quote),
		unary("CreateLoan", LoanServiceServer.CreateLoan),
		unary("GetLoan", LoanServiceServer.GetLoan),
		unary("ListLoans", LoanServiceServer.ListLoans),
		unary("PayInstallment", LoanServiceServer.PayInstallment),
		unary("SubmitPrepayment", LoanServiceServer.SubmitPrepayment),
		unary("ConfirmPrepayment", LoanServiceServer.ConfirmPrepayment),
		unary("RejectPrepayment", LoanServiceServer.RejectPrepayment),
		unary("CancelLoan", LoanServiceServer.CancelLoan),
		unary("Reschedule", LoanServiceServer.Reschedule),
		unary("ReconcileLoan", LoanServiceServer.ReconcileLoan),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "microloan/v1/loan.json",
}

// mutatingMethods are the calls guarded by idempotency keys.
var mutatingMethods = map[string]bool{
	FullMethod("CreateLoan"):        true,
	FullMethod("PayInstallment"):    true,
	FullMethod("SubmitPrepayment"):  true,
	FullMethod("ConfirmPrepayment"): true,
	FullMethod("RejectPrepayment"):  true,
	FullMethod("CancelLoan"):        true,
	FullMethod("Reschedule"):        true,
}

func unary[Req, Resp any](name string, call func(LoanServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(name)

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(LoanServiceServer)

			if interceptor == nil {
				return call(impl, ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(impl, ctx, req.(*Req))
			})
		},
	}
}
