// Package httputils builds the HTTP clients used to talk to source control
// hosts. Behaviors are stacked as RoundTrippers around a dialer with a
// timeout: retries on 5xx, OAuth2, rejecting non-2xx and request counting.
package httputils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"go.skia.org/bisection/go/metrics2"
	"go.skia.org/bisection/go/sklog"
)

const (
	DialTimeout    = time.Minute
	RequestTimeout = 5 * time.Minute

	// maxBodyInError caps how much of a response body ends up in logs and
	// errors.
	maxBodyInError = 10 * 1024
)

var errRetryableStatus = errors.New("retryable status")

// ClientConfig describes an http.Client. The zero value is a plain client
// with no timeouts.
type ClientConfig struct {
	DialTimeout    time.Duration
	RequestTimeout time.Duration

	// Retries, if non-nil, retries requests that fail or get a 5xx.
	Retries *BackOffConfig

	// TokenSource, if non-nil, authenticates every request.
	TokenSource oauth2.TokenSource

	// Only2xx turns any other status into an error.
	Only2xx bool

	// CountRequests increments http_request_metrics{host} per request.
	CountRequests bool
}

// DefaultClientConfig has both timeouts, default retries and request
// counting. Non-2xx responses are returned to the caller.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:    DialTimeout,
		RequestTimeout: RequestTimeout,
		Retries:        DefaultBackOffConfig(),
		CountRequests:  true,
	}
}

func (c ClientConfig) With2xxOnly() ClientConfig {
	c.Only2xx = true
	return c
}

func (c ClientConfig) WithoutRetries() ClientConfig {
	c.Retries = nil
	return c
}

func (c ClientConfig) WithRetries(cfg *BackOffConfig) ClientConfig {
	c.Retries = cfg
	return c
}

func (c ClientConfig) WithTokenSource(ts oauth2.TokenSource) ClientConfig {
	c.TokenSource = ts
	return c
}

// Client builds the http.Client. The retry budget never exceeds the request
// timeout.
func (c ClientConfig) Client() *http.Client {
	rt := http.DefaultTransport
	if c.DialTimeout > 0 {
		rt = &http.Transport{
			DialContext: (&net.Dialer{Timeout: c.DialTimeout}).DialContext,
		}
	}
	if c.Retries != nil {
		retries := *c.Retries
		if c.RequestTimeout > 0 && retries.MaxElapsedTime > c.RequestTimeout {
			retries.MaxElapsedTime = c.RequestTimeout
		}
		rt = &backOffTransport{next: rt, cfg: retries}
	}
	if c.TokenSource != nil {
		rt = &oauth2.Transport{Source: c.TokenSource, Base: rt}
	}
	if c.Only2xx {
		rt = only2xxTransport{next: rt}
	}
	if c.CountRequests {
		rt = countingTransport{next: rt}
	}
	return &http.Client{Transport: rt, Timeout: c.RequestTimeout}
}

// NewTimeoutClient returns a client with timeouts and no retries.
func NewTimeoutClient() *http.Client {
	return DefaultClientConfig().WithoutRetries().Client()
}

type only2xxTransport struct {
	next http.RoundTripper
}

func (t only2xxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: status code %d: %s", req.Method, req.URL, resp.StatusCode, ReadAndClose(resp.Body))
	}
	return resp, nil
}

// BackOffConfig is the exponential backoff applied to retried requests.
type BackOffConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	RandomizationFactor float64
	Multiplier          float64
}

func DefaultBackOffConfig() *BackOffConfig {
	return &BackOffConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         time.Minute,
		MaxElapsedTime:      5 * time.Minute,
		RandomizationFactor: 0.5,
		Multiplier:          1.5,
	}
}

func (c BackOffConfig) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	b.RandomizationFactor = c.RandomizationFactor
	b.Multiplier = c.Multiplier
	return b
}

// backOffTransport retries transport errors and 5xx responses. The last
// response is returned as is once the budget runs out, so callers still see
// the status code.
type backOffTransport struct {
	next http.RoundTripper
	cfg  BackOffConfig
}

func (t *backOffTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		_ = req.Body.Close()
	}

	var resp *http.Response
	attempt := func() error {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		var err error
		resp, err = t.next.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return errRetryableStatus
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if errors.Is(err, errRetryableStatus) {
			sklog.Warningf("%s %s: status code %d, retrying in %s: %s", req.Method, req.URL, resp.StatusCode, wait, ReadAndClose(resp.Body))
		} else {
			sklog.Warningf("%s %s: %s, retrying in %s", req.Method, req.URL, err, wait)
		}
		resp = nil
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(t.cfg.backOff(), req.Context()), notify)
	if err == nil || errors.Is(err, errRetryableStatus) {
		return resp, nil
	}
	sklog.Warningf("%s %s: giving up: %s", req.Method, req.URL, err)
	return nil, err
}

type countingTransport struct {
	next http.RoundTripper
}

func (t countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	metrics2.GetCounter("http_request_metrics", map[string]string{"host": req.URL.Host}).Inc(1)
	return t.next.RoundTrip(req)
}

// ReadAndClose returns up to 10KB of r quoted, or "" if r is nil or
// unreadable. r is always closed.
func ReadAndClose(r io.ReadCloser) string {
	if r == nil {
		return ""
	}
	defer func() {
		if err := r.Close(); err != nil {
			sklog.Warningf("Failed to close response body: %s", err)
		}
	}()
	b, err := io.ReadAll(io.LimitReader(r, maxBodyInError))
	if err != nil {
		sklog.Warningf("Failed to read response body: %s", err)
		return ""
	}
	return fmt.Sprintf("%q", string(b))
}
