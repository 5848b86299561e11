// ABOUTME: Embeds the static demo page into the binary using go:embed
// ABOUTME: Provides staticFS for serving at the root path

package web

import "embed"

//go:embed static
var staticFS embed.FS
