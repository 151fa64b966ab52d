// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a
// real browser, so search engines do not single out Go's handshake.
package fingerprint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // crypto/tls, no mimicry
	ProfileRandom  Profile = "random" // randomized uTLS hello
)

// Profiles lists every supported profile.
var Profiles = []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom}

// ParseProfile maps a config string to a Profile. Empty selects Chrome.
func ParseProfile(s string) (Profile, error) {
	if s == "" {
		return ProfileChrome, nil
	}
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Profiles {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("fingerprint: unknown profile %q", s)
}

// ProxyFunc selects the proxy for a request, as http.Transport.Proxy does.
type ProxyFunc func(*http.Request) (*url.URL, error)

// Options tunes the transport built by Transport.
type Options struct {
	Proxy ProxyFunc
	// RootCAs replaces the system roots, mainly for tests.
	RootCAs *x509.CertPool
}

// Transport returns a round tripper presenting profile p. ProfileGo yields a
// plain clone of http.DefaultTransport; the others dial TLS through uTLS.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		base.Proxy = opts.Proxy
	}
	if p == ProfileGo {
		if opts.RootCAs != nil {
			base.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		return base, nil
	}

	hello, err := helloFor(p)
	if err != nil {
		return nil, err
	}
	hello.roots = opts.RootCAs

	dial := base.DialContext
	base.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		conn, err := hello.client(raw, host)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("fingerprint: %s handshake with %s: %w", p, host, err)
		}
		return conn, nil
	}
	return base, nil
}

// hello produces uTLS connections for one profile. The transport only speaks
// HTTP/1.1 over a custom dialer, so h2 is removed from the advertised ALPN.
// Specs are rebuilt per connection because ApplyPreset mutates them.
type hello struct {
	id     utls.ClientHelloID
	custom bool
	roots  *x509.CertPool
}

func helloFor(p Profile) (*hello, error) {
	switch p {
	case ProfileChrome:
		return &hello{id: utls.HelloChrome_Auto, custom: true}, nil
	case ProfileFirefox:
		return &hello{id: utls.HelloFirefox_Auto, custom: true}, nil
	case ProfileSafari:
		return &hello{id: utls.HelloIOS_Auto, custom: true}, nil
	case ProfileRandom:
		return &hello{id: utls.HelloRandomizedNoALPN}, nil
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

func (h *hello) client(raw net.Conn, host string) (*utls.UConn, error) {
	cfg := &utls.Config{ServerName: host, RootCAs: h.roots}
	if !h.custom {
		return utls.UClient(raw, cfg, h.id), nil
	}

	spec, err := utls.UTLSIdToSpec(h.id)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %s spec: %w", h.id.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	conn := utls.UClient(raw, cfg, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("fingerprint: applying preset: %w", err)
	}
	return conn, nil
}
