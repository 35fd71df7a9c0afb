package http

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
)

const defaultSpecPath = "api/openapi.yaml"

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%s</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '/docs/openapi.yaml', dom_id: '#swagger-ui', deepLinking: true});
  </script>
</body>
</html>`

// SetupDocs serves Swagger UI at /docs over the OpenAPI document at
// deps.SpecPath. The document is read once; when it is missing both routes
// answer 503 instead of failing startup.
func SetupDocs(app *fiber.App, deps *Dependencies) {
	path := deps.SpecPath
	if path == "" {
		path = defaultSpecPath
	}
	spec, err := os.ReadFile(path)
	if err != nil {
		deps.logger().Warn("openapi document unavailable, /docs disabled", "path", path, "error", err)
	}
	page := fmt.Sprintf(swaggerUIPage, "Pinmap API")

	app.Get("/docs", func(c *fiber.Ctx) error {
		if spec == nil {
			return errUnavailable(c, "api documentation not bundled")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(page)
	})
	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		if spec == nil {
			return errUnavailable(c, "api documentation not bundled")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(spec)
	})
}
