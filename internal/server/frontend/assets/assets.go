// Package assets embeds the admin page template and its static files.
package assets

import "embed"

//go:embed form.html
var Templates embed.FS

//go:embed public
var Public embed.FS
