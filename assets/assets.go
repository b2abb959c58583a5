// Package assets embeds the built web application.
//
// index.html is generated from index.html.tpl, style.css and script.js by
// cmd/minify and committed alongside the sources.
package assets

import _ "embed"

//go:embed index.html
var Index []byte
