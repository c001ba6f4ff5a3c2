package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/coursehub/pkg/errors"
)

// Response defines the JSON envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details sent to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes pagination metadata.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// NewMeta computes page metadata from a total row count.
func NewMeta(page, perPage int, total int64) *Meta {
	if perPage <= 0 {
		perPage = 1
	}
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return &Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: pages,
	}
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta writes a JSON success response including pagination metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	appErr := resolve(err)
	c.JSON(appErr.StatusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}

// ErrorPage renders the shared HTML error template for server-rendered routes.
func ErrorPage(c *gin.Context, err error) {
	appErr := resolve(err)
	c.HTML(appErr.StatusCode, "error.html", gin.H{
		"Code":    appErr.Code,
		"Message": appErr.Message,
		"Status":  appErr.StatusCode,
	})
}

func resolve(err error) *appErrors.AppError {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)
	if appErr.StatusCode == 0 {
		cpy := *appErr
		cpy.StatusCode = http.StatusInternalServerError
		appErr = &cpy
	}
	return appErr
}
