package server

import (
	"github.com/gin-gonic/gin"
)

// APIError is the body of every failed API response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// abortWithError stops the handler chain and writes a JSON error.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: APIError{Code: code, Message: message}})
}

// abortWithDetails is abortWithError with extra structured details.
func abortWithDetails(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, errorResponse{Error: APIError{Code: code, Message: message, Details: details}})
}
