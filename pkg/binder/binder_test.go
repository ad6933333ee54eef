package binder_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/binder"
)

type callbackQuery struct {
	Code     string `query:"code"`
	Next     string `query:"next,omitempty"`
	Type     string `query:"type"`
	Skip     string `query:"-"`
	Untagged string
	internal string `query:"internal"`
}

func TestQuery(t *testing.T) {
	t.Parallel()

	t.Run("binds tagged fields", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&code=def&next=%2Fdashboard&type=signup&Skip=x&untagged=y&internal=z", nil)

		var q callbackQuery
		require.NoError(t, binder.Query()(r, &q))
		assert.Equal(t, "abc", q.Code)
		assert.Equal(t, "/dashboard", q.Next)
		assert.Equal(t, "signup", q.Type)
		assert.Empty(t, q.Skip)
		assert.Empty(t, q.Untagged)
		assert.Empty(t, q.internal)
	})

	t.Run("missing parameters keep zero values", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
		q := callbackQuery{Type: "preset"}
		require.NoError(t, binder.Query()(r, &q))
		assert.Empty(t, q.Code)
		assert.Equal(t, "preset", q.Type)
	})

	t.Run("non string field", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/?page=2", nil)
		var q struct {
			Page int `query:"page"`
		}
		err := binder.Query()(r, &q)
		assert.ErrorIs(t, err, binder.ErrFailedToParseQuery)
		assert.True(t, binder.IsBindError(err))
	})

	t.Run("non pointer target", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.ErrorIs(t, binder.Query()(r, callbackQuery{}), binder.ErrFailedToParseQuery)
	})
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	ReturnTo string `form:"returnTo"`
}

func TestForm(t *testing.T) {
	t.Parallel()

	t.Run("urlencoded", func(t *testing.T) {
		t.Parallel()
		body := url.Values{"email": {"ada@example.com"}, "password": {" s3cret pass "}, "returnTo": {"/dashboard"}}
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		var f loginForm
		require.NoError(t, binder.Form()(r, &f))
		assert.Equal(t, loginForm{Email: "ada@example.com", Password: " s3cret pass ", ReturnTo: "/dashboard"}, f)
	})

	t.Run("multipart", func(t *testing.T) {
		t.Parallel()
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("email", "ada@example.com"))
		require.NoError(t, mw.WriteField("password", "pw"))
		require.NoError(t, mw.Close())
		r := httptest.NewRequest(http.MethodPost, "/login", &body)
		r.Header.Set("Content-Type", mw.FormDataContentType())

		var f loginForm
		require.NoError(t, binder.Form()(r, &f))
		assert.Equal(t, loginForm{Email: "ada@example.com", Password: "pw"}, f)
	})

	t.Run("missing content type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=a"))
		var f loginForm
		assert.ErrorIs(t, binder.Form()(r, &f), binder.ErrMissingContentType)
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json")
		var f loginForm
		assert.ErrorIs(t, binder.Form()(r, &f), binder.ErrUnsupportedMediaType)
	})
}

type checkoutBody struct {
	PriceID string `json:"priceId"`
	Email   string `json:"email"`
}

func TestJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctype   string
		body    string
		want    checkoutBody
		wantErr error
	}{
		{"valid", "application/json; charset=utf-8", `{"priceId":"price_1","email":"a@example.com"}`, checkoutBody{PriceID: "price_1", Email: "a@example.com"}, nil},
		{"unknown field", "application/json", `{"priceId":"price_1","plan":"pro"}`, checkoutBody{}, binder.ErrFailedToParseJSON},
		{"empty body", "application/json", ``, checkoutBody{}, binder.ErrFailedToParseJSON},
		{"trailing data", "application/json", `{"priceId":"p"}{"priceId":"q"}`, checkoutBody{}, binder.ErrFailedToParseJSON},
		{"wrong media type", "text/plain", `{}`, checkoutBody{}, binder.ErrUnsupportedMediaType},
		{"no media type", "", `{}`, checkoutBody{}, binder.ErrMissingContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(tt.body))
			if tt.ctype != "" {
				r.Header.Set("Content-Type", tt.ctype)
			}

			var got checkoutBody
			err := binder.JSON()(r, &got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
