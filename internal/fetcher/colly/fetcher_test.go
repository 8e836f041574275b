package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsSessionCookiesAndXHR(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "JSESSIONID=abc; SERVERID=s1" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			http.Error(w, "not xhr", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"aaData":[]}`))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "coursebot-test", Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), Request{
		URL: srv.URL + "/jsxsd/xsxkkc/xsxkBxxk?xkkcid=K1",
		Cookies: []*http.Cookie{
			{Name: "JSESSIONID", Value: "abc"},
			{Name: "SERVERID", Value: "s1"},
		},
		XHR: true,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"aaData":[]}`, string(resp.Body))

	// Revisiting the same URL is allowed.
	_, err = f.Fetch(context.Background(), Request{
		URL:     srv.URL + "/jsxsd/xsxkkc/xsxkBxxk?xkkcid=K1",
		Cookies: []*http.Cookie{{Name: "JSESSIONID", Value: "abc"}, {Name: "SERVERID", Value: "s1"}},
		XHR:     true,
	})
	require.NoError(t, err)
}

func TestFetchReportsHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, Request{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := Request{
		URL:     "http://jwxt.example/jsxsd/",
		Headers: http.Header{"X-Trace": {"yes"}},
		Referer: "http://jwxt.example/jsxsd/xsxk/xsxk_index",
	}
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	require.Equal(t, req.Referer, collyReq.Headers.Get("Referer"))
	require.Empty(t, collyReq.Headers.Get("Cookie"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, req.URL)},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCookieHeader(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", CookieHeader(nil))
	require.Equal(t, "a=1; b=2", CookieHeader([]*http.Cookie{
		{Name: "a", Value: "1"}, nil, {Name: ""}, {Name: "b", Value: "2"},
	}))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
