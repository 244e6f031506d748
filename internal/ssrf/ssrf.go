// Package ssrf implements pre-flight URL validation (component H) guarding
// the scrape orchestrator against server-side request forgery: disallowed
// schemes, disallowed hosts, credentials in the URL, and IP addresses in
// loopback/link-local/private/multicast ranges. Re-invoked on every
// redirect hop via a custom http.Client.CheckRedirect.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ProtectionError is returned when a URL fails SSRF validation.
type ProtectionError struct {
	URL    string
	Reason string
}

func (e *ProtectionError) Error() string {
	return fmt.Sprintf("ssrf: rejected %q: %s", e.URL, e.Reason)
}

// Options configures the validator's policy.
type Options struct {
	AllowedHosts  []string // empty means "no host allow-list restriction"
	BlockPrivate  bool
	BlockLoopback bool
	// Resolver is used to resolve hostnames to IPs; defaults to
	// net.DefaultResolver. Overridable for tests.
	Resolver *net.Resolver
}

// Validator validates URLs against an SSRF policy before they are fetched.
type Validator struct {
	opts Options
}

// New creates a Validator with the given options.
func New(opts Options) *Validator {
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	return &Validator{opts: opts}
}

func (v *Validator) hostAllowed(host string) bool {
	if len(v.opts.AllowedHosts) == 0 {
		return true
	}
	for _, h := range v.opts.AllowedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// Validate checks rawURL against the configured policy, resolving its host
// to an IP address and rejecting disallowed IP classes.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ProtectionError{rawURL, "unparsable URL"}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return &ProtectionError{rawURL, "scheme must be http or https"}
	}
	if u.User != nil {
		return &ProtectionError{rawURL, "credentials in URL are not allowed"}
	}
	host := u.Hostname()
	if host == "" {
		return &ProtectionError{rawURL, "missing host"}
	}
	if !v.hostAllowed(host) {
		return &ProtectionError{rawURL, "host not in allow-list"}
	}

	ips, err := v.resolve(ctx, host)
	if err != nil {
		return &ProtectionError{rawURL, fmt.Sprintf("DNS resolution failed: %v", err)}
	}
	for _, ip := range ips {
		if reason, blocked := v.ipBlocked(ip); blocked {
			return &ProtectionError{rawURL, reason}
		}
	}
	return nil
}

func (v *Validator) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := v.opts.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func (v *Validator) ipBlocked(ip net.IP) (string, bool) {
	if v.opts.BlockLoopback && ip.IsLoopback() {
		return "resolves to a loopback address", true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return "resolves to a link-local address", true
	}
	if ip.IsMulticast() {
		return "resolves to a multicast address", true
	}
	if ip.IsUnspecified() {
		return "resolves to an unspecified address", true
	}
	if bcast := isBroadcast(ip); bcast {
		return "resolves to a broadcast address", true
	}
	if v.opts.BlockPrivate && ip.IsPrivate() {
		return "resolves to a private (RFC1918/RFC4193) address", true
	}
	return "", false
}

func isBroadcast(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4[0] == 255 && v4[1] == 255 && v4[2] == 255 && v4[3] == 255
}

// CheckRedirect builds an http.Client.CheckRedirect function that
// re-validates every redirect target before the client follows it.
func (v *Validator) CheckRedirect() func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if err := v.Validate(req.Context(), req.URL.String()); err != nil {
			return err
		}
		if len(via) >= 10 {
			return fmt.Errorf("ssrf: too many redirects (%d)", len(via))
		}
		return nil
	}
}
