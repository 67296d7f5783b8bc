// Package transport builds the HTTP clients used to fetch pages and check links.
//
// NewDirect connects directly. NewTor routes connections through a Tor SOCKS5
// proxy, and EmbeddedTor starts a private Tor daemon with tornago when the
// user asked for Tor without giving a proxy address. Targets on v3 onion
// hosts (IsOnion) always need Tor.
//
// Every client adds the configured User-Agent, Cookie and extra headers to
// each request, including redirected ones.
package transport
