package redirect

import (
	"net/url"
	"strings"
)

// componentUnescapes lists characters url.QueryEscape escapes but
// encodeURIComponent leaves alone.
var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s the way encodeURIComponent does: every
// byte except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is escaped, spaces become %20.
func EncodeComponent(s string) string {
	return componentUnescapes.Replace(url.QueryEscape(s))
}
