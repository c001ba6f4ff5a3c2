package middleware

import (
	"html/template"

	"github.com/gin-gonic/gin"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("error.html").Parse(`{{.Status}} {{.Message}}`)))
	return r
}
