package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Response represents the standard API response structure
type Response struct {
	Code     int      `json:"code"`
	Message  string   `json:"message"`
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

// OK sends a successful response with default message "success"
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// OKWarn sends a successful response carrying non-fatal warnings, e.g.
// a config sync failure that did not abort the operation.
func OKWarn(c *gin.Context, data any, warnings []string) {
	c.JSON(http.StatusOK, Response{
		Code:     CodeSuccess,
		Message:  "success",
		Data:     data,
		Warnings: warnings,
	})
}

// Fail sends an error response with specified HTTP status, business code, and message
func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailErr sends an error response from an AppError.
// The internal Err is logged server-side under a correlation id and never
// returned to the client; the id is included so operators can match the
// client report to the log line.
func FailErr(c *gin.Context, err *AppError) {
	data := err.Data

	if err.Err != nil {
		correlationID := uuid.NewString()
		logrus.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"code":           err.Code,
			"path":           c.FullPath(),
		}).Errorf("%s: %v", err.Message, err.Err)

		if data == nil {
			data = gin.H{"correlationId": correlationID}
		}
	}

	c.JSON(err.HTTPStatus, Response{
		Code:    err.Code,
		Message: err.Message,
		Data:    data,
	})
}

// ListData represents the standard list response data structure
type ListData struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// OKItems sends a successful list response with pagination
func OKItems(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data: ListData{
			Items:    items,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		},
	})
}
