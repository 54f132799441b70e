package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	if got := truncate("longerstring", 6); got != "lon..." {
		t.Fatalf("expected lon..., got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, struct {
		A int `json:"a"`
	}{A: 1}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}

	expected := "{\n  \"a\": 1\n}\n"
	if buf.String() != expected {
		t.Fatalf("unexpected json output:\n%s", buf.String())
	}
}

func TestQuoteCmd(t *testing.T) {
	out, err := execute(t, "quote", "--principal", "1000", "--rate", "20", "--terms", "4")
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	if !strings.Contains(out, `"installment_amount": "303"`) || !strings.Contains(out, `"total_payable": "1212"`) {
		t.Fatalf("unexpected quote:\n%s", out)
	}
}

func TestQuoteCmd_InvalidInput(t *testing.T) {
	if _, err := execute(t, "quote", "--principal", "abc", "--rate", "20"); err == nil {
		t.Fatal("expected invalid principal to fail")
	}
	if _, err := execute(t, "quote", "--principal", "1000", "--rate", "20", "--terms", "0"); err == nil {
		t.Fatal("expected zero terms to fail")
	}
}

func TestScheduleCmd(t *testing.T) {
	out, err := execute(t, "schedule", "--principal", "1000", "--rate", "20", "--terms", "4", "--start", "2024-01-01")
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	for _, want := range []string{"2024-01-08", "2024-01-29", "303.00", "1212.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in schedule:\n%s", want, out)
		}
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	out, err := execute(t, "token", "--user", "adv-1", "--role", "advisor")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}

	user, err := auth.NewJWTManager("test-secret", 0).Authenticate(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if user.ID != "adv-1" || user.Role != domain.RoleAdvisor {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := execute(t, "token", "--user", "adv-1", "--role", "banker"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}

func TestLoanGetCmd(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/v1/loans/loan-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"failed to get loan","message":"loan not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"loan-1","client_id":"cli-1","status":"active","version":3,"outstanding":"606",
			"installments":[{"number":3,"due_date":"2024-01-22","status":"overdue","amount_due":"303","mora_amount":"4.55","amount_paid":"0"}]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "--token", "tok", "loan", "get", "loan-1")
	if err != nil {
		t.Fatalf("loan get failed: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if !strings.Contains(out, "version=3") || !strings.Contains(out, "overdue") || !strings.Contains(out, "4.55") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	_, err = execute(t, "--url", srv.URL, "loan", "get", "missing")
	if err == nil || !strings.Contains(err.Error(), "loan not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestReconcileCmd_ReportsDiscrepancies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_loans":2,"reconciled_loans":1,"discrepancies":[{"loan_id":"loan-2","discrepancies":[{"installment_number":2,"rule":"portions","detail":"split does not add up"}]}]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "loan", "reconcile")
	if err == nil {
		t.Fatal("expected reconciliation failure")
	}
	if !strings.Contains(out, "Reconciled 1 of 2 loans") || !strings.Contains(out, "loan-2 #2 portions") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
