package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/observability/tracing"
	"github.com/smallbiznis/kigyomail/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TokenField is the hidden form field carrying the portal's CSRF token.
const TokenField = "jp.go.nta.houjin_bangou.framework.web.common.CNSFWTokenProcessor.request.token"

const maxPageBytes = 8 << 20

var (
	tokenPattern       = regexp.MustCompile(`name="` + regexp.QuoteMeta(TokenField) + `"\s+value="([^"]+)"`)
	dispositionPattern = regexp.MustCompile(`filename="?([^";\s]+)"?`)
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Client *http.Client `optional:"true"`
}

// Client downloads differential archives from the corporate number portal.
// It performs no retries.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	log       *zap.Logger
}

func NewClient(p Params) *Client {
	httpClient := p.Client
	if httpClient == nil {
		timeout := p.Config.Registry.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimSpace(p.Config.Registry.BaseURL)
	if baseURL == "" {
		baseURL = config.DefaultRegistryURL
	}
	userAgent := strings.TrimSpace(p.Config.Registry.UserAgent)
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      tracing.WrapHTTPClient(httpClient),
		log:       p.Log.Named("registry.portal"),
	}
}

func (c *Client) FetchDailyArchive(ctx context.Context, date time.Time) (domain.Archive, error) {
	label := domain.DateLabel(date)

	page, cookies, err := c.loadListing(ctx)
	if err != nil {
		return domain.Archive{}, err
	}

	token, ok := extractToken(page)
	if !ok {
		return domain.Archive{}, domain.ErrAuth
	}

	fileNo, ok := findFileNo(page, label)
	if !ok {
		return domain.Archive{}, fmt.Errorf("%w: %s", domain.ErrNotFound, label)
	}

	data, fileName, err := c.download(ctx, token, fileNo, cookies)
	if err != nil {
		return domain.Archive{}, err
	}
	if fileName == "" {
		fileName = fmt.Sprintf("diff_%s.zip", label)
	}

	c.log.Info("registry archive downloaded",
		zap.String("date", label),
		zap.String("file_no", fileNo),
		zap.String("file_name", fileName),
		zap.Int("bytes", len(data)),
	)

	return domain.Archive{Date: date, FileName: fileName, Data: data}, nil
}

func (c *Client) loadListing(ctx context.Context) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("%w: listing status %d", domain.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", fmt.Errorf("%w: read listing: %v", domain.ErrTransport, err)
	}

	return string(body), cookieHeader(resp.Header.Values("Set-Cookie")), nil
}

func (c *Client) download(ctx context.Context, token, fileNo, cookies string) ([]byte, string, error) {
	form := url.Values{}
	form.Set(TokenField, token)
	form.Set("event", "download")
	form.Set("selDlFileNo", fileNo)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	if cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: download status %d", domain.ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read archive: %v", domain.ErrTransport, err)
	}

	return data, fileNameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

func extractToken(page string) (string, bool) {
	match := tokenPattern.FindStringSubmatch(page)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}

// findFileNo locates the option value labelled with the date. The strict
// pattern wants the label right after the tag, the loose one allows text
// in between.
func findFileNo(page, label string) (string, bool) {
	quoted := regexp.QuoteMeta(label)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`value="(\d+)"[^>]*>\s*` + quoted),
		regexp.MustCompile(`value="(\d+)"[^>]*>[^<]*` + quoted),
	}
	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(page); len(match) == 2 {
			return match[1], true
		}
	}
	return "", false
}

func cookieHeader(setCookies []string) string {
	pairs := make([]string, 0, len(setCookies))
	for _, raw := range setCookies {
		pair, _, _ := strings.Cut(raw, ";")
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		pairs = append(pairs, pair)
	}
	return strings.Join(pairs, "; ")
}

func fileNameFromDisposition(header string) string {
	match := dispositionPattern.FindStringSubmatch(header)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

var _ domain.Fetcher = (*Client)(nil)
