package transport

import (
	"encoding/base32"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	onionSuffix  = ".onion"
	onionVersion = 0x03
)

var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// IsOnion reports whether host is a valid v3 onion address. The embedded
// checksum is verified, so typos are rejected. Subdomains are allowed.
func IsOnion(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if i := strings.LastIndexByte(strings.TrimSuffix(host, onionSuffix), '.'); i >= 0 {
		host = host[i+1:]
	}
	if !onionV3Pattern.MatchString(host) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(host, onionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionVersion {
		return false
	}
	want := onionChecksum(pubkey)
	return checksum[0] == want[0] && checksum[1] == want[1]
}

// RequiresTor reports whether target is an onion site.
func RequiresTor(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return IsOnion(u.Hostname())
}

// onionChecksum is the first two bytes of SHA3-256(".onion checksum" || pubkey || version).
func onionChecksum(pubkey []byte) []byte {
	data := make([]byte, 0, 15+len(pubkey)+1)
	data = append(data, ".onion checksum"...)
	data = append(data, pubkey...)
	data = append(data, onionVersion)
	sum := sha3.Sum256(data)
	return sum[:2]
}
