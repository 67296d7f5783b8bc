package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultUserAgent identifies siteaudit requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; siteaudit/1.0)"

const (
	maxRedirects       = 10
	checkProxyTimeout  = 2 * time.Second
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5CmdConnect   = 0x01
	socks5AddrTypeName = 0x03

	// unknownOnion is a syntactically valid onion host that does not exist.
	// The proxy only needs to answer the CONNECT request.
	unknownOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// Options are the request settings shared by every client.
type Options struct {
	// UserAgent replaces DefaultUserAgent when set.
	UserAgent string

	// Cookie is a raw Cookie header value sent with every request.
	Cookie string

	// Headers are extra request headers.
	Headers map[string]string
}

// Option configures Options.
type Option func(*Options)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		o.UserAgent = ua
	}
}

// WithCookie sets the Cookie header.
func WithCookie(cookie string) Option {
	return func(o *Options) {
		o.Cookie = cookie
	}
}

// WithHeaders adds request headers.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

func newOptions(opts []Option) Options {
	o := Options{UserAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewDirect returns a client that connects to sites directly.
func NewDirect(timeout time.Duration, opts ...Option) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	return newClient(base, timeout, newOptions(opts))
}

// NewTor returns a client that routes every connection through the Tor
// SOCKS5 proxy at proxyAddr ("host:port"). The proxy is not contacted here;
// use CheckProxy to verify it.
func NewTor(proxyAddr string, timeout time.Duration, opts ...Option) (*http.Client, error) {
	if !isValidProxyAddress(proxyAddr) {
		return nil, ErrInvalidProxyAddress
	}
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	base := &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
		// Onion services authenticate through their address and commonly
		// serve self-signed certificates.
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // onion services
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}
	return newClient(base, timeout, newOptions(opts)), nil
}

func newClient(base http.RoundTripper, timeout time.Duration, o Options) *http.Client {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // nil options never fail
	return &http.Client{
		Transport: &headerTransport{base: base, opts: o},
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// headerTransport adds the configured headers to every request, redirects included.
//
// A User-Agent already set on the request wins over the configured one. The
// configured cookie is appended to any Cookie header the request carries, and
// entries in Options.Headers overwrite whatever the request had. The request
// is cloned before it is changed, as http.RoundTripper requires.
type headerTransport struct {
	base http.RoundTripper
	opts Options
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.opts.UserAgent)
	}
	if t.opts.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.opts.Cookie)
		} else {
			clone.Header.Set("Cookie", t.opts.Cookie)
		}
	}
	for key, value := range t.opts.Headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}

// isValidProxyAddress reports whether address is "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// CheckProxy verifies that proxyAddr speaks SOCKS5 without authentication
// and answers a CONNECT request for an onion host. Any reply code counts:
// Tor refuses the unknown host, which still proves it is proxying.
func CheckProxy(ctx context.Context, proxyAddr string) error {
	if !isValidProxyAddress(proxyAddr) {
		return ErrInvalidProxyAddress
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrProxyTimeout
		}
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}
	reply := make([]byte, 2)
	if err := readReply(conn, reply); err != nil {
		return err
	}
	if reply[0] != socks5Version || reply[1] != socks5AuthNone {
		return ErrProxyNotTor
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeName, byte(len(unknownOnion))}
	req = append(req, unknownOnion...)
	req = append(req, 0x00, 80)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}
	header := make([]byte, 4)
	if err := readReply(conn, header); err != nil {
		return err
	}
	if header[0] != socks5Version {
		return ErrProxyNotTor
	}
	return nil
}

func readReply(conn net.Conn, buf []byte) error {
	if _, err := io.ReadFull(conn, buf); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrProxyTimeout
		}
		return ErrProxyNotTor
	}
	return nil
}
