package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// probeTimeout bounds the SOCKS5 handshake done by CheckConnection.
const probeTimeout = 2 * time.Second

// SOCKS5 protocol constants used by the probe.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// probeHost is never resolved. The probe only needs the proxy to answer a CONNECT.
	probeHost = "pdfaudit-probe.invalid"
)

// HeaderFunc returns the extra headers to send to host.
type HeaderFunc func(host string) map[string]string

// Options configures a Client.
type Options struct {
	// ProxyAddress routes all connections through a SOCKS5 proxy when set.
	ProxyAddress string

	// UserAgent is set on every request that does not carry one.
	UserAgent string

	// MaxRedirects is the longest redirect chain a client follows.
	MaxRedirects int

	// Headers supplies per-host headers. It may be nil.
	Headers HeaderFunc
}

// Client builds HTTP clients for link checks.
type Client struct {
	opts   Options
	dialer proxy.ContextDialer
}

// NewClient validates opts and prepares the dialer.
// It does not contact the proxy. Call CheckConnection for that.
func NewClient(opts Options) (*Client, error) {
	if opts.MaxRedirects < 0 {
		opts.MaxRedirects = 0
	}

	c := &Client{opts: opts}
	if opts.ProxyAddress == "" {
		return c, nil
	}

	if !isValidProxyAddress(opts.ProxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	d, err := proxy.SOCKS5("tcp", opts.ProxyAddress, nil, &net.Dialer{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}
	c.dialer = cd

	return c, nil
}

// ProxyAddress returns the configured proxy address, or "" for direct connections.
func (c *Client) ProxyAddress() string {
	return c.opts.ProxyAddress
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// CheckConnection performs a SOCKS5 greeting and CONNECT against the proxy.
// Without a proxy it returns ProxyStatusOK.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	if c.opts.ProxyAddress == "" {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.opts.ProxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return readFailure(err)
	}
	if greeting[0] != socks5Version || greeting[1] == socks5AuthNoAccept || greeting[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomID, byte(len(probeHost))}
	req = append(req, probeHost...)
	req = append(req, 0x00, 0x50)
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	// Any reply code counts: the probe host does not exist, so a failure
	// reply from a working proxy is expected.
	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readFailure(err)
	}
	if reply[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

func readFailure(err error) ProxyStatus {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}

// NewHTTPClient returns an HTTP client for link checks.
//
// The client has no overall timeout; callers bound each request with a
// context deadline. Redirects are followed up to MaxRedirects, after which
// requests fail with an error wrapping ErrRedirectLimit. Per-host headers and
// the User-Agent are applied on every hop, including redirects.
func (c *Client) NewHTTPClient() *http.Client {
	base := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	if c.dialer != nil {
		base.DialContext = c.dialer.DialContext
	} else {
		base.Proxy = http.ProxyFromEnvironment
		base.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}

	maxRedirects := c.opts.MaxRedirects
	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      base,
			userAgent: c.opts.UserAgent,
			headers:   c.opts.Headers,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", ErrRedirectLimit, maxRedirects)
			}
			return nil
		},
	}
}

// headerInjectingTransport sets the User-Agent and per-host headers on every request.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   HeaderFunc
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.headers != nil {
		for key, value := range t.headers(clone.URL.Hostname()) {
			clone.Header.Set(key, value)
		}
	}

	return t.base.RoundTrip(clone)
}
