// Package bandcamp speaks the public Bandcamp surfaces the crawler needs:
// fan collection pages, item collectors pages and the JSON pagination APIs
// behind them.
package bandcamp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://bandcamp.com"

	// pageSize is the batch size requested from the pagination APIs.
	pageSize = 500
)

// The scraped pages are served to browsers; a default Go user agent gets
// bot-filtered.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

var itemURLPattern = regexp.MustCompile(`^https?://[a-z0-9-]+\.bandcamp\.com`)

// ValidItemURL reports whether url points at a band subdomain the item
// crawl can scrape. Items sold through external stores carry foreign URLs
// with no collectors module.
func ValidItemURL(url string) bool {
	return itemURLPattern.MatchString(url)
}

// throttledTransport paces all outgoing requests through one limiter.
type throttledTransport struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func (t throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// Client fetches fan and item pages from the public Bandcamp site.
// It is safe for concurrent use; both crawl workers share one Client so
// the rate limit applies to the process, not to each worker.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New returns a Client for the public site, paced at four requests per
// second. A 429 costs the caller a rollback and a ten second pause, so
// staying under the remote threshold is cheaper than hitting it.
func New() *Client {
	return NewWithBaseURL(defaultBaseURL)
}

// NewWithBaseURL returns a Client rooted at base instead of the public
// site. Tests point this at a local server.
func NewWithBaseURL(base string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: throttledTransport{
				limiter: rate.NewLimiter(rate.Every(time.Second/4), 1),
				base:    http.DefaultTransport,
			},
		},
		baseURL: base,
	}
}

// FetchFanPage loads a fan's public page and decodes its embedded
// collection payload. Unknown usernames come back as ErrNotFound.
func (c *Client) FetchFanPage(ctx context.Context, username string) (*FanPage, error) {
	body, err := c.fetchHTML(ctx, c.baseURL+"/"+username)
	if err != nil {
		return nil, err
	}
	blob, err := pageDataBlob(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var page FanPage
	if err := json.Unmarshal([]byte(blob), &page); err != nil {
		return nil, clientErr(KindSerialization, "decode pagedata blob", err)
	}
	return &page, nil
}

// FetchCollectionItems loads one page of a fan's collection: everything
// older than the given pagination token.
func (c *Client) FetchCollectionItems(ctx context.Context, fanID int64, olderThan string) (*CollectionPage, error) {
	payload := struct {
		Count          int64  `json:"count"`
		FanID          int64  `json:"fan_id"`
		OlderThanToken string `json:"older_than_token"`
	}{pageSize, fanID, olderThan}

	var page CollectionPage
	if err := c.postJSON(ctx, c.baseURL+"/api/fancollection/1/collection_items", payload, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchItemPage loads an item's public page and decodes its collectors
// module. Subscription-only releases have no such module and come back as
// ErrNotFound; the item URL is fetched as given.
func (c *Client) FetchItemPage(ctx context.Context, itemURL string) (*ItemPage, error) {
	body, err := c.fetchHTML(ctx, itemURL)
	if err != nil {
		return nil, err
	}
	blobs := scanItemPage(bytes.NewReader(body))
	if blobs.collectorsData == "" {
		if blobs.subscription {
			// No known way to crawl subscription collectors.
			return nil, clientErr(KindNotFound, "fetch "+itemURL, errors.New("subscription release"))
		}
		return nil, clientErr(KindPage, "fetch "+itemURL, errors.New("no collectors-data element"))
	}
	var data CollectorsData
	if err := json.Unmarshal([]byte(blobs.collectorsData), &data); err != nil {
		return nil, clientErr(KindSerialization, "decode collectors-data blob", err)
	}
	return &ItemPage{CollectorsData: data, RawPageProperties: blobs.pageProps}, nil
}

// FetchMoreThumbs loads one page of an item's collectors, resuming after
// token. The tralbum identity comes from the item page's properties, not
// from the stored item.
func (c *Client) FetchMoreThumbs(ctx context.Context, token string, tralbumID int64, tralbumType string) (*ThumbsPage, error) {
	payload := struct {
		Count       int64  `json:"count"`
		Token       string `json:"token"`
		TralbumID   int64  `json:"tralbum_id"`
		TralbumType string `json:"tralbum_type"`
	}{pageSize, token, tralbumID, tralbumType}

	var page ThumbsPage
	if err := c.postJSON(ctx, c.baseURL+"/api/tralbumcollectors/2/thumbs", payload, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) fetchHTML(ctx context.Context, url string) ([]byte, error) {
	log.WithField("url", url).Debug("fetching page")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, clientErr(KindNetwork, "build request for "+url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clientErr(KindNetwork, "fetch "+url, err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, url); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clientErr(KindNetwork, "read "+url, err)
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload interface{}, out interface{}) error {
	log.WithField("url", url).Debug("fetching API page")

	body, err := json.Marshal(payload)
	if err != nil {
		return clientErr(KindSerialization, "encode request for "+url, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return clientErr(KindNetwork, "build request for "+url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clientErr(KindNetwork, "post "+url, err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, url); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return clientErr(KindSerialization, "decode "+url+" response", err)
	}
	return nil
}

// classifyStatus maps the response status onto the error taxonomy. The
// crawl branches on 429 and 404; every other failure status is a network
// error, which counts as transient and leaves the entity queued.
func classifyStatus(status int, url string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return clientErr(KindRateLimited, "fetch "+url, nil)
	case status == http.StatusNotFound:
		return clientErr(KindNotFound, "fetch "+url, nil)
	case status < 200 || status >= 300:
		return clientErr(KindNetwork, "fetch "+url, fmt.Errorf("unexpected status %d", status))
	}
	return nil
}
