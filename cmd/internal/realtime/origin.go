package realtime

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/samber/lo"
)

var errOriginMissing = errors.New("missing origin")

// originPolicy decides which browser origins may open a session.
// An allowlist entry matches either the exact origin or any origin on the same host.
type originPolicy struct {
	required bool
	any      bool
	exact    map[string]struct{}
	hosts    map[string]struct{}
}

func newOriginPolicy(required bool, allowed []string) originPolicy {
	p := originPolicy{
		required: required,
		exact:    make(map[string]struct{}, len(allowed)),
		hosts:    make(map[string]struct{}, len(allowed)),
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
		case a == "*":
			p.any = true
		default:
			p.exact[a] = struct{}{}
			if h := originHost(a); h != "" {
				p.hosts[h] = struct{}{}
			}
		}
	}
	return p
}

// check validates the Origin header value of an upgrade request.
// Non-browser clients send no Origin and pass unless one is required.
func (p originPolicy) check(origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		if p.required {
			return errOriginMissing
		}
		return nil
	}
	if p.any {
		return nil
	}
	if _, ok := p.exact[origin]; ok {
		return nil
	}
	if h := originHost(origin); h != "" {
		if _, ok := p.hosts[h]; ok {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// acceptPatterns feeds websocket.AcceptOptions.OriginPatterns, which matches the origin host
// with filepath.Match. Without them Accept refuses every cross-origin request on its own.
func (p originPolicy) acceptPatterns() []string {
	out := lo.Keys(p.hosts)
	if p.any {
		out = append(out, "*")
	}
	slices.Sort(out)
	return out
}

// originHost returns the lowercased host of an origin ("https://a.example:8443")
// or of a bare host ("a.example:8443"), without the port.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(strings.TrimSpace(s))
}
