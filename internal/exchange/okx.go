// Package exchange talks to the OKX public REST API.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/metrics"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	instrumentsPath = "/api/v5/public/instruments"
	tickerPath      = "/api/v5/market/ticker"
	candlesPath     = "/api/v5/market/history-candles"

	maxBodySize = 8 << 20

	// okx returns HTTP 200 with this business code when throttling.
	codeRateLimited = "50011"
)

// Client is safe for concurrent use; it shares one pooled *http.Client.
type Client interface {
	// Instruments lists every SPOT instrument id, e.g. BTC-USDT.
	Instruments(ctx context.Context) ([]string, error)
	// Ticker returns the last traded price for pair as a decimal string.
	Ticker(ctx context.Context, pair string) (string, error)
	// DailyClose returns the close of the single 1D bar requested with
	// after=<UTC midnight of day>.
	DailyClose(ctx context.Context, pair string, day time.Time) (string, error)
}

type okxClient struct {
	http    *http.Client
	baseURL string
}

func New(httpClient *http.Client, baseURL string) Client {
	return &okxClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// NewHTTPClient builds the process-wide client. connect bounds dialing and
// TLS, read bounds the wait for response headers, total bounds the whole call.
func NewHTTPClient(connect, read, total time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: total,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: read,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

func (c *okxClient) Instruments(ctx context.Context) ([]string, error) {
	q := url.Values{"instType": {"SPOT"}}

	body, err := c.get(ctx, "instruments", instrumentsPath, q)
	if err != nil {
		return nil, err
	}

	ids := gjson.GetBytes(body, "data.#.instId").Array()
	if len(ids) == 0 {
		return nil, c.fail("instruments", KindEmpty, 0, errors.New("no instruments in payload"))
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s := id.String(); s != "" {
			out = append(out, s)
		}
	}

	return out, nil
}

func (c *okxClient) Ticker(ctx context.Context, pair string) (string, error) {
	q := url.Values{"instId": {pair}}

	body, err := c.get(ctx, "ticker", tickerPath, q)
	if err != nil {
		return "", err
	}

	last := gjson.GetBytes(body, "data.0.last")
	if !last.Exists() {
		if len(gjson.GetBytes(body, "data").Array()) == 0 {
			return "", c.fail("ticker", KindEmpty, 0, fmt.Errorf("no ticker for %s", pair))
		}
		return "", c.fail("ticker", KindMalformed, 0, errors.New("ticker without last field"))
	}
	if last.String() == "" {
		return "", c.fail("ticker", KindMalformed, 0, errors.New("empty last price"))
	}

	return last.String(), nil
}

func (c *okxClient) DailyClose(ctx context.Context, pair string, day time.Time) (string, error) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	q := url.Values{
		"instId": {pair},
		"bar":    {"1D"},
		"limit":  {"1"},
		"after":  {strconv.FormatInt(midnight.UnixMilli(), 10)},
	}

	body, err := c.get(ctx, "history-candles", candlesPath, q)
	if err != nil {
		return "", err
	}

	bars := gjson.GetBytes(body, "data").Array()
	if len(bars) == 0 {
		return "", c.fail("history-candles", KindEmpty, 0, fmt.Errorf("no bar for %s on %s", pair, midnight.Format(time.DateOnly)))
	}

	// bar layout: [ts, open, high, low, close, vol, ...]
	closePrice := bars[0].Get("4")
	if !closePrice.Exists() || closePrice.String() == "" {
		return "", c.fail("history-candles", KindMalformed, 0, errors.New("bar without close field"))
	}

	return closePrice.String(), nil
}

func (c *okxClient) get(ctx context.Context, endpoint, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, c.fail(endpoint, KindNetwork, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindNetwork
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = KindTimeout
		}
		return nil, c.fail(endpoint, kind, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, c.fail(endpoint, KindNetwork, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.fail(endpoint, KindRateLimited, resp.StatusCode, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.WithFields(log.Fields{"endpoint": endpoint, "status": resp.StatusCode}).
			Debugf("okx error body: %.256s", body)
		return nil, c.fail(endpoint, KindBadStatus, resp.StatusCode, nil)
	}

	if !gjson.ValidBytes(body) {
		return nil, c.fail(endpoint, KindMalformed, resp.StatusCode, errors.New("invalid json"))
	}

	if code := gjson.GetBytes(body, "code"); code.Exists() && code.String() != "0" {
		if code.String() == codeRateLimited {
			return nil, c.fail(endpoint, KindRateLimited, resp.StatusCode, nil)
		}
		return nil, c.fail(endpoint, KindBadStatus, resp.StatusCode,
			fmt.Errorf("okx code %s: %s", code.String(), gjson.GetBytes(body, "msg").String()))
	}

	metrics.ObserveUpstream(endpoint, "ok")

	return body, nil
}

func (c *okxClient) fail(endpoint string, kind FailureKind, status int, err error) error {
	metrics.ObserveUpstream(endpoint, string(kind))

	return &FetchError{
		Kind:     kind,
		Endpoint: endpoint,
		Status:   status,
		Err:      err,
	}
}
