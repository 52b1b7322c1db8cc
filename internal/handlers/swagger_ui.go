package handlers

import (
	"html/template"
	"net/http"
	"strings"
)

const swaggerUIVersion = "5.17.14"

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} {{.Version}}</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@{{.UIVersion}}/swagger-ui.css">
<style>body { margin: 0; } .topbar { display: none; }</style>
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@{{.UIVersion}}/swagger-ui-bundle.js"></script>
<script>
window.ui = SwaggerUIBundle({
  url: {{.SpecURL}},
  dom_id: "#swagger-ui",
  deepLinking: true,
  docExpansion: "list",
  tryItOutEnabled: true,
  requestSnippetsEnabled: true,
  presets: [SwaggerUIBundle.presets.apis],
});
</script>
</body>
</html>`))

type swaggerPageData struct {
	Title     string
	Version   string
	UIVersion string
	SpecURL   string
}

// SwaggerUI serves an API browser pointed at the sibling openapi.json
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	data := swaggerPageData{
		Title:     apiTitle,
		Version:   apiVersion,
		UIVersion: swaggerUIVersion,
		SpecURL:   strings.TrimSuffix(r.URL.Path, "/") + "/openapi.json",
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := swaggerPage.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
