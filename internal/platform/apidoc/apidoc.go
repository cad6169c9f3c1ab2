// Package apidoc は OpenAPI 定義の配信と Swagger UI。
package apidoc

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const DocPath = "/api-docs/openapi.json"

//go:embed openapi.json
var document []byte

// RegisterRoutes: GET /api-docs/openapi.json と GET /swagger/*any
func RegisterRoutes(r gin.IRoutes) {
	r.GET(DocPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", document)
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(DocPath)))
}
