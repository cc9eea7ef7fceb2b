package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForPlatformCodes(t *testing.T) {
	tests := map[Code]Metadata{
		CodeValidation:   {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:    {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:     {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:     {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeInternal:     {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:   {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range tests {
		if got := MetadataFor(code); got != want {
			t.Fatalf("code %s: expected %+v got %+v", code, want, got)
		}
	}
	if MetadataFor("SOMETHING_UNKNOWN").HTTPStatus != http.StatusInternalServerError {
		t.Fatal("unknown codes must map to internal")
	}
}

func TestDomainCodesMapToClientStatuses(t *testing.T) {
	tests := map[Code]int{
		CodeTotalMismatch:     http.StatusUnprocessableEntity,
		CodeInvalidDiscount:   http.StatusUnprocessableEntity,
		CodeDiscountExpired:   http.StatusUnprocessableEntity,
		CodeDiscountExhausted: http.StatusUnprocessableEntity,
		CodeInvalidQuantity:   http.StatusUnprocessableEntity,
		CodeInsufficientStock: http.StatusConflict,
		CodeInvalidTransition: http.StatusConflict,
		CodeNotCancellable:    http.StatusConflict,
		CodeNotRefundable:     http.StatusConflict,
		CodeNotDeliverable:    http.StatusConflict,
	}
	for code, status := range tests {
		meta := MetadataFor(code)
		if meta.HTTPStatus != status {
			t.Fatalf("code %s expected status %d got %d", code, status, meta.HTTPStatus)
		}
		if meta.Retryable {
			t.Fatalf("code %s should not be retryable", code)
		}
	}
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "reserve stock").WithDetails(map[string]any{"product": "tee"})

	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict || wrapped.Message() != "reserve stock" {
		t.Fatalf("unexpected code/message %s %q", wrapped.Code(), wrapped.Message())
	}
	if wrapped.Details() == nil {
		t.Fatal("details should be preserved")
	}
	if As(nil) != nil {
		t.Fatal("As(nil) should return nil")
	}
}

func TestIsMatchesWrappedCodes(t *testing.T) {
	inner := New(CodeDiscountExpired, "SPRING expired")
	outer := fmt.Errorf("consume: %w", inner)

	if !Is(outer, CodeDiscountExpired) {
		t.Fatalf("expected Is to find wrapped code")
	}
	if Is(outer, CodeNotFound) {
		t.Fatalf("expected Is to reject other codes")
	}
	if !IsDiscountError(outer) {
		t.Fatalf("expected expired code to count as discount error")
	}
	if IsDiscountError(New(CodeInsufficientStock, "x")) {
		t.Fatalf("stock errors are not discount errors")
	}
}

func TestDumpFlattensChainAndPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_code_key", Detail: "Key (code) already exists."}
	err := Wrap(CodeDependency, fmt.Errorf("insert order: %w", pgErr), "create order")

	d := Dump(err)
	if d.Code != CodeDependency || !d.Retryable {
		t.Fatalf("unexpected code/retryable %s %v", d.Code, d.Retryable)
	}
	if d.PGCode != "23505" || d.PGConstraint != "orders_code_key" {
		t.Fatalf("postgres fields not extracted: %+v", d)
	}
	if len(d.Chain) < 3 || !strings.Contains(d.Chain[len(d.Chain)-1], "PgError") {
		t.Fatalf("chain should end at the driver error: %v", d.Chain)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("nil error should dump empty")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	plain := New(CodeNotFound, "order not found")
	if got := plain.Error(); got != "NOT_FOUND: order not found" {
		t.Fatalf("unexpected message %q", got)
	}
	wrapped := Wrap(CodeDependency, stdErrors.New("dial tcp: i/o timeout"), "wallet query failed")
	if got := wrapped.Error(); got != "DEPENDENCY_ERROR: wallet query failed: dial tcp: i/o timeout" {
		t.Fatalf("unexpected message %q", got)
	}
	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Code() != CodeInternal {
		t.Fatal("nil error should be empty and internal")
	}
}
