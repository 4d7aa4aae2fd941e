package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GateErrorBadInput       = "GATE_BAD_INPUT"
	GateErrorUnauthorized   = "GATE_UNAUTHORIZED"
	GateErrorIssuanceFailed = "GATE_ISSUANCE_FAILED"
	GateErrorNotFound       = "GATE_NOT_FOUND"
	GateErrorInternal       = "GATE_INTERNAL_ERROR"
)

func gateErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGateErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not the operator"), strings.Contains(msg, "unauthorized"):
		return newGateError(err.Error(), goerrors.CategoryAuthz, GateErrorUnauthorized)
	case strings.Contains(msg, "issue invite"), strings.Contains(msg, "issuance"):
		return newGateError(err.Error(), goerrors.CategoryOperation, GateErrorIssuanceFailed)
	case strings.Contains(msg, "not found"):
		return newGateError(err.Error(), goerrors.CategoryNotFound, GateErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newGateError(err.Error(), goerrors.CategoryBadInput, GateErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGateErrorEnvelope(mapped)
}

func newGateError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGateErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGateErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = gateHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGateTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGateTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GateErrorBadInput
	case goerrors.CategoryNotFound:
		return GateErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return GateErrorUnauthorized
	case goerrors.CategoryOperation:
		return GateErrorIssuanceFailed
	default:
		return GateErrorInternal
	}
}

func gateHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
