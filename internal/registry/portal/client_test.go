package portal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/registry/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const listingPage = `<html><body><form method="post">
<input type="hidden" name="jp.go.nta.houjin_bangou.framework.web.common.CNSFWTokenProcessor.request.token" value="tok-123">
<select name="selDlFileNo">
<option value="17001">20250509</option>
<option value="17002">
    20250512</option>
<option value="17003" class="x">CSV 20250513 (zip)</option>
</select></form></body></html>`

type portalStub struct {
	listingStatus  int
	downloadStatus int
	page           string
	disposition    string

	gotForm   url.Values
	gotCookie string
	gotAgent  string
}

func (s *portalStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "route", Value: "r1", HttpOnly: true})
			if s.listingStatus != 0 {
				w.WriteHeader(s.listingStatus)
				return
			}
			_, _ = io.WriteString(w, s.page)
		case http.MethodPost:
			require.NoError(t, r.ParseForm())
			s.gotForm = r.PostForm
			s.gotCookie = r.Header.Get("Cookie")
			s.gotAgent = r.Header.Get("User-Agent")
			if s.downloadStatus != 0 {
				w.WriteHeader(s.downloadStatus)
				return
			}
			if s.disposition != "" {
				w.Header().Set("Content-Disposition", s.disposition)
			}
			_, _ = io.WriteString(w, "PK-zip-bytes")
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestClient(baseURL string) *Client {
	return NewClient(Params{
		Config: config.Config{Registry: config.RegistryConfig{
			BaseURL:   baseURL,
			UserAgent: config.DefaultUserAgent,
			Timeout:   5 * time.Second,
		}},
		Log: zap.NewNop(),
	})
}

func date(t *testing.T, label string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, label)
	require.NoError(t, err)
	return d
}

func TestFetchDailyArchive(t *testing.T) {
	stub := &portalStub{page: listingPage, disposition: `attachment; filename="13_tokyo_diff_20250512.zip"`}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	archive, err := newTestClient(srv.URL).FetchDailyArchive(context.Background(), date(t, "20250512"))
	require.NoError(t, err)

	assert.Equal(t, "13_tokyo_diff_20250512.zip", archive.FileName)
	assert.Equal(t, []byte("PK-zip-bytes"), archive.Data)
	assert.Equal(t, "tok-123", stub.gotForm.Get(TokenField))
	assert.Equal(t, "download", stub.gotForm.Get("event"))
	assert.Equal(t, "17002", stub.gotForm.Get("selDlFileNo"))
	assert.Equal(t, "JSESSIONID=abc; route=r1", stub.gotCookie)
	assert.Equal(t, config.DefaultUserAgent, stub.gotAgent)
}

func TestFetchDailyArchiveLooseLabelAndDefaultName(t *testing.T) {
	stub := &portalStub{page: listingPage}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	archive, err := newTestClient(srv.URL).FetchDailyArchive(context.Background(), date(t, "20250513"))
	require.NoError(t, err)

	assert.Equal(t, "17003", stub.gotForm.Get("selDlFileNo"))
	assert.Equal(t, "diff_20250513.zip", archive.FileName)
}

func TestFetchDailyArchiveErrors(t *testing.T) {
	cases := []struct {
		name string
		stub *portalStub
		date string
		want error
	}{
		{name: "not published", stub: &portalStub{page: listingPage}, date: "20250601", want: domain.ErrNotFound},
		{name: "missing token", stub: &portalStub{page: `<option value="17002">20250512</option>`}, date: "20250512", want: domain.ErrAuth},
		{name: "listing failure", stub: &portalStub{listingStatus: http.StatusServiceUnavailable}, date: "20250512", want: domain.ErrTransport},
		{name: "download failure", stub: &portalStub{page: listingPage, downloadStatus: http.StatusForbidden}, date: "20250512", want: domain.ErrTransport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.stub.handler(t))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FetchDailyArchive(context.Background(), date(t, tc.date))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchDailyArchiveNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	_, err := newTestClient(baseURL).FetchDailyArchive(context.Background(), date(t, "20250512"))
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCookieHeader(t *testing.T) {
	got := cookieHeader([]string{"a=1; Path=/; HttpOnly", " b=2 ", ""})
	if got != "a=1; b=2" {
		t.Fatalf("unexpected cookie header %q", got)
	}
}
