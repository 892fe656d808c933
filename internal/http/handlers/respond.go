package handlers

import (
	"net/http"

	"github.com/fintrack/fintrack/internal/domain/transaction"
	"github.com/gin-gonic/gin"
)

// Every endpoint answers with this envelope; non-2xx always carries
// success=false and a message.
type Response struct {
	Success    bool                    `json:"success"`
	Message    string                  `json:"message,omitempty"`
	Data       interface{}             `json:"data,omitempty"`
	Pagination *transaction.Pagination `json:"pagination,omitempty"`
	Errors     interface{}             `json:"errors,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

func RespondData(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func RespondPage(ctx *gin.Context, data interface{}, p transaction.Pagination) {
	ctx.JSON(http.StatusOK, Response{
		Success:    true,
		Data:       data,
		Pagination: &p,
	})
}

func RespondValidation(ctx *gin.Context, message string, details interface{}) {
	ctx.JSON(http.StatusBadRequest, Response{
		Success: false,
		Message: message,
		Errors:  details,
	})
}

func RespondBadRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, Response{Success: false, Message: message})
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusUnauthorized, Response{Success: false, Message: message})
}

func RespondNotFound(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusNotFound, Response{Success: false, Message: message})
}

func RespondConflict(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusConflict, Response{Success: false, Message: message})
}

// RespondInternal hides the underlying error outside dev; release mode is the
// prod signal here.
func RespondInternal(ctx *gin.Context, message string, err error) {
	resp := Response{Success: false, Message: message}

	if err != nil && gin.Mode() != gin.ReleaseMode {
		resp.Error = err.Error()
	}

	ctx.JSON(http.StatusInternalServerError, resp)
}
