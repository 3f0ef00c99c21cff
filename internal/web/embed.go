package web

import (
	"embed"
	"io/fs"

	"github.com/labstack/echo/v4"
)

//go:embed static
var static embed.FS

// StaticFS is the embedded demo page, rooted at the static directory.
var StaticFS fs.FS = echo.MustSubFS(static, "static")
