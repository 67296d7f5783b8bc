package transport

import (
	"context"
	"crypto/ed25519"
	"encoding/base32"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// onionAddress builds the v3 address of an ed25519 public key.
func onionAddress(pubkey []byte) string {
	data := make([]byte, 0, 35)
	data = append(data, pubkey...)
	data = append(data, onionChecksum(pubkey)...)
	data = append(data, onionVersion)
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + onionSuffix
}

// TestNewDirect tests that clients send the configured headers.
func TestNewDirect(t *testing.T) {
	t.Parallel()

	t.Run("default user agent", func(t *testing.T) {
		t.Parallel()

		got := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got <- r.Header.Get("User-Agent")
		}))
		defer server.Close()

		resp, err := NewDirect(5*time.Second).Get(server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()

		if ua := <-got; ua != DefaultUserAgent {
			t.Errorf("expected %q, got %q", DefaultUserAgent, ua)
		}
	})

	t.Run("cookie, headers and user agent override", func(t *testing.T) {
		t.Parallel()

		headers := make(chan http.Header, 1)
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			headers <- r.Header.Clone()
		}))
		defer server.Close()

		client := NewDirect(5*time.Second,
			WithUserAgent("audit-bot"),
			WithCookie("session=abc"),
			WithHeaders(map[string]string{"X-Team": "web"}),
		)
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()

		header := <-headers
		if header.Get("User-Agent") != "audit-bot" {
			t.Errorf("unexpected user agent %q", header.Get("User-Agent"))
		}
		if header.Get("Cookie") != "session=abc" {
			t.Errorf("unexpected cookie %q", header.Get("Cookie"))
		}
		if header.Get("X-Team") != "web" {
			t.Errorf("unexpected header %q", header.Get("X-Team"))
		}
	})

	t.Run("timeout is applied", func(t *testing.T) {
		t.Parallel()

		client := NewDirect(7 * time.Second)
		if client.Timeout != 7*time.Second {
			t.Errorf("expected 7s, got %v", client.Timeout)
		}
	})
}

func TestNewTor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"valid", "127.0.0.1:9050", false},
		{"hostname", "localhost:9150", false},
		{"missing port", "127.0.0.1", true},
		{"port zero", "127.0.0.1:0", true},
		{"port too large", "127.0.0.1:70000", true},
		{"empty host", ":9050", true},
		{"empty", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewTor(tc.address, time.Second)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidProxyAddress) {
					t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
				}
				return
			}
			if err != nil || client == nil {
				t.Errorf("unexpected result %v, %v", client, err)
			}
		})
	}
}

// fakeProxy serves one connection with handle and returns its address.
func fakeProxy(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return listener.Addr().String()
}

// TestCheckProxy tests the SOCKS5 handshake verification.
func TestCheckProxy(t *testing.T) {
	t.Parallel()

	t.Run("socks5 proxy", func(t *testing.T) {
		t.Parallel()

		addr := fakeProxy(t, func(conn net.Conn) {
			buf := make([]byte, 256)
			_, _ = conn.Read(buf[:3])
			_, _ = conn.Write([]byte{0x05, 0x00})
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})
		if err := CheckProxy(context.Background(), addr); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("http server", func(t *testing.T) {
		t.Parallel()

		addr := fakeProxy(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		})
		if err := CheckProxy(context.Background(), addr); !errors.Is(err, ErrProxyNotTor) {
			t.Errorf("expected ErrProxyNotTor, got %v", err)
		}
	})

	t.Run("authentication required", func(t *testing.T) {
		t.Parallel()

		addr := fakeProxy(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})
		if err := CheckProxy(context.Background(), addr); !errors.Is(err, ErrProxyNotTor) {
			t.Errorf("expected ErrProxyNotTor, got %v", err)
		}
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := listener.Addr().String()
		listener.Close()

		if err := CheckProxy(context.Background(), addr); !errors.Is(err, ErrProxyCannotConnect) {
			t.Errorf("expected ErrProxyCannotConnect, got %v", err)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		t.Parallel()

		if err := CheckProxy(context.Background(), "nope"); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

// TestIsOnion tests v3 onion address validation.
func TestIsOnion(t *testing.T) {
	t.Parallel()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	valid := onionAddress(pub)
	corrupted := []byte(valid)
	if corrupted[0] == 'a' {
		corrupted[0] = 'b'
	} else {
		corrupted[0] = 'a'
	}

	testCases := []struct {
		name string
		host string
		want bool
	}{
		{"valid", valid, true},
		{"uppercase", strings.ToUpper(valid), true},
		{"subdomain", "www." + valid, true},
		{"trailing dot", valid + ".", true},
		{"bad checksum", string(corrupted), false},
		{"v2 address", "expyuzz4wqqyqhjn.onion", false},
		{"clearnet", "example.com", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsOnion(tc.host); got != tc.want {
				t.Errorf("IsOnion(%q) = %v, want %v", tc.host, got, tc.want)
			}
		})
	}

	if !RequiresTor("http://" + valid + "/index.html") {
		t.Error("onion URL must require Tor")
	}
	if RequiresTor("https://example.com/") {
		t.Error("clearnet URL must not require Tor")
	}
}

func TestEmbeddedTor(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor(WithStartupTimeout(time.Minute))
	if e.startupTimeout != time.Minute {
		t.Errorf("expected 1m, got %v", e.startupTimeout)
	}
	if e.IsRunning() || e.SocksAddr() != "" {
		t.Error("daemon reported running before Start")
	}
	if _, err := e.Client(time.Second); !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("expected ErrTorNotRunning, got %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on an unstarted daemon: %v", err)
	}
	if NewEmbeddedTor().startupTimeout != defaultStartupTimeout {
		t.Error("unexpected default startup timeout")
	}
}
