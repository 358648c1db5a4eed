package api

import (
	"context"
	"errors"
	"net/http"

	"milestone-escrow-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: ErrBelowMinimum wraps ErrValidation.
var errorMappings = []errorMapping{
	{models.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{models.ErrIncompleteBankInfo, http.StatusBadRequest, "INCOMPLETE_BANK_INFO"},
	{models.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{models.ErrInsufficientBalance, http.StatusConflict, "INSUFFICIENT_BALANCE"},
	{models.ErrIllegalMilestoneTransition, http.StatusConflict, "ILLEGAL_MILESTONE_TRANSITION"},
	{models.ErrInvalidLedgerTransition, http.StatusConflict, "INVALID_LEDGER_TRANSITION"},
	{models.ErrInvalidWithdrawalTransition, http.StatusConflict, "INVALID_WITHDRAWAL_TRANSITION"},
	{models.ErrSignatureInvalid, http.StatusForbidden, "SIGNATURE_INVALID"},
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrLockNotObtained, http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError maps err to its stable code. Unknown errors are logged and
// reported as INTERNAL without their message.
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"success": false, "error": errorBody{Code: m.code, Message: err.Error()}})
			return
		}
	}
	zap.L().Error("Unhandled request error",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   errorBody{Code: "INTERNAL", Message: "internal error"},
	})
}

// respondBindError reports a request body that failed binding, listing
// validator failures per field.
func respondBindError(c *gin.Context, err error) {
	body := errorBody{Code: "VALIDATION_ERROR", Message: "invalid request body"}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		body.Details = processValidationErrors(validationErrors)
	} else {
		body.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": body})
}

func processValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}
