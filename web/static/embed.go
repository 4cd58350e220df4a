package static

import "embed"

// Files exposes the single-page UI bundled into the fangraph binary.
//
//go:embed index.html classless.css
var Files embed.FS
