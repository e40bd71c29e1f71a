package utils

import (
	"net/http"

	"Greenroom/services/rooms"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error half of the uniform response envelope.
type ErrorBody struct {
	ErrorCode string      `json:"errorCode"`
	Reason    string      `json:"reason"`
	Data      interface{} `json:"data,omitempty"`
}

// Envelope is the uniform response shape every endpoint returns.
type Envelope struct {
	ResultType string      `json:"resultType"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Success    interface{} `json:"success,omitempty"`
}

// statusFor is the single place the failure taxonomy turns into HTTP.
func statusFor(code rooms.FailureCode) int {
	switch code {
	case rooms.CodeValidation:
		return http.StatusBadRequest
	case rooms.CodeNotFound:
		return http.StatusNotFound
	case rooms.CodeConflict:
		return http.StatusConflict
	case rooms.CodeForbidden:
		return http.StatusForbidden
	case rooms.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Success writes the success envelope.
func Success(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, Envelope{
		ResultType: "SUCCESS",
		Success:    payload,
	})
}

// Fail writes the failure envelope with the mapped status code.
func Fail(c *gin.Context, failure *rooms.Failure) {
	body := &ErrorBody{
		ErrorCode: string(failure.Code),
		Reason:    failure.Reason,
	}
	if failure.CorrelationID != "" {
		body.Data = gin.H{"correlationId": failure.CorrelationID}
	}
	c.JSON(statusFor(failure.Code), Envelope{
		ResultType: "FAIL",
		Error:      body,
	})
}

// FailValidation is a shortcut for request-binding errors in controllers.
func FailValidation(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, Envelope{
		ResultType: "FAIL",
		Error:      &ErrorBody{ErrorCode: string(rooms.CodeValidation), Reason: reason},
	})
}
