// Package binder fills request structs from query strings, form bodies and
// JSON bodies. Fields are matched by `query`, `form` and `json` tags.
package binder

import "net/http"

// Query binds URL query parameters into string fields tagged `query:"name"`.
// Repeated parameters keep their first value.
//
//	type callbackRequest struct {
//		Code string `query:"code"`
//		Next string `query:"next"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindStrings(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
