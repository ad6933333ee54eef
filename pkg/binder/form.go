package binder

import (
	"fmt"
	"mime"
	"net/http"
)

// DefaultMaxMemory is the maximum memory used for parsing multipart forms.
const DefaultMaxMemory = 10 << 20 // 10 MB

// Form binds application/x-www-form-urlencoded and multipart/form-data
// bodies into string fields tagged `form:"name"`. File parts are ignored.
func Form() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		mediaType, err := mediaTypeOf(r)
		if err != nil {
			return err
		}

		switch mediaType {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			return bindStrings(v, "form", r.PostForm, ErrFailedToParseForm)
		case "multipart/form-data":
			if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			values := map[string][]string{}
			if r.MultipartForm != nil {
				values = r.MultipartForm.Value
			}
			return bindStrings(v, "form", values, ErrFailedToParseForm)
		default:
			return fmt.Errorf("%w: got %s, expected application/x-www-form-urlencoded or multipart/form-data", ErrUnsupportedMediaType, mediaType)
		}
	}
}

func mediaTypeOf(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return "", ErrMissingContentType
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}
	return mediaType, nil
}
