package routes

import (
	"path"
	"strings"
)

var staticPrefixes = []string{"/_next/static/", "/_next/image"}

var imageExtensions = map[string]struct{}{
	".svg": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {},
}

// IsStatic reports whether p is a static asset the auth gate never inspects:
// build assets, the image optimizer, favicon.ico and image files.
func IsStatic(p string) bool {
	if p == "/favicon.ico" {
		return true
	}
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}
