package api

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.json
var openAPISchema []byte

// docPaths are served without an API key.
var docPaths = []string{"/openapi.json", "/docs", "/redoc"}

const swaggerPage = `<!DOCTYPE html>
<html>
<head>
<title>browserq - Swagger UI</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui", persistAuthorization: true});
</script>
</body>
</html>
`

const redocPage = `<!DOCTYPE html>
<html>
<head>
<title>browserq - ReDoc</title>
<meta charset="utf-8"/>
</head>
<body>
<redoc spec-url="/openapi.json"></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@2/bundles/redoc.standalone.js"></script>
</body>
</html>
`

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(openAPISchema)
}

func (s *Server) handleSwaggerUI(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, swaggerPage)
}

func (s *Server) handleReDoc(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, redocPage)
}

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}
