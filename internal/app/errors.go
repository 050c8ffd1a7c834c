package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"intldossier/api/internal/auth"
	"intldossier/api/internal/hierarchy"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var cycleErr *hierarchy.CycleError
	if errors.As(err, &cycleErr) {
		return http.StatusBadRequest, "CIRCULAR_REFERENCE", cycleErr.Error(), map[string]any{
			"userId": cycleErr.UserID,
			"path":   cycleErr.Path,
		}
	}
	if errors.Is(err, hierarchy.ErrNoEscalationPath) {
		return http.StatusBadRequest, "NO_ESCALATION_PATH", err.Error(), nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
