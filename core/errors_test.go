package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestGateErrorMapper(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		code     int
	}{
		{
			name:     "operator gate",
			err:      fmt.Errorf("core: actor 1 is not the operator"),
			textCode: GateErrorUnauthorized,
			code:     http.StatusForbidden,
		},
		{
			name:     "issuance failure",
			err:      fmt.Errorf("core: issue invite for channel -100777: boom"),
			textCode: GateErrorIssuanceFailed,
			code:     http.StatusInternalServerError,
		},
		{
			name:     "missing record",
			err:      ErrEntitlementNotFound,
			textCode: GateErrorNotFound,
			code:     http.StatusNotFound,
		},
		{
			name:     "validation",
			err:      fmt.Errorf("core: channel id is required"),
			textCode: GateErrorBadInput,
			code:     http.StatusBadRequest,
		},
		{
			name:     "unclassified",
			err:      errors.New("disk on fire"),
			textCode: GateErrorInternal,
			code:     http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := gateErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, mapped.Code)
			}
		})
	}
}

func TestGateErrorMapperPreservesExistingEnvelope(t *testing.T) {
	original := goerrors.New("quota exceeded", goerrors.CategoryConflict).
		WithTextCode("GATE_QUOTA").
		WithCode(http.StatusConflict)

	mapped := gateErrorMapper(fmt.Errorf("wrapped: %w", original))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != "GATE_QUOTA" || mapped.Code != http.StatusConflict {
		t.Fatalf("expected original envelope preserved, got %+v", mapped)
	}
}

func TestGateErrorMapperNilPassthrough(t *testing.T) {
	if mapped := gateErrorMapper(nil); mapped != nil {
		t.Fatalf("expected nil for nil input, got %+v", mapped)
	}
}
