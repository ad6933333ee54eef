package handler

import (
	"net/http"
	"net/url"
)

type redirectResponse struct {
	url  string
	code int
}

func (r redirectResponse) Render(w http.ResponseWriter, req *http.Request) error {
	http.Redirect(w, req, r.url, r.code)
	return nil
}

// Redirect responds with 303 See Other, so a form POST is followed by a GET.
func Redirect(target string) Response {
	return redirectResponse{url: target, code: http.StatusSeeOther}
}

// RedirectURL is Redirect for a parsed URL.
func RedirectURL(u *url.URL) Response {
	return Redirect(u.String())
}

// RedirectWithCode responds with a redirect using an explicit status code.
func RedirectWithCode(target string, code int) Response {
	return redirectResponse{url: target, code: code}
}
