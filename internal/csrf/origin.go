package csrf

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides whether a request's Origin (or, failing that, the
// origin of its Referer) is trusted. In strict mode a mutating request with
// no resolvable origin is rejected; in permissive mode it passes, and an
// unrecognized origin passes too but is surfaced via Recognized=false so the
// caller can log it.
type OriginPolicy struct {
	allowed       map[string]bool
	trustedParent string // bare domain; matches itself and any subdomain
	strict        bool
}

// NewOriginPolicy builds a policy from the configured origin allow list.
// Entries are normalized by stripping a trailing slash.
func NewOriginPolicy(origins []string, trustedParent string, strict bool) *OriginPolicy {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[o] = true
		}
	}
	return &OriginPolicy{
		allowed:       allowed,
		trustedParent: strings.TrimSpace(trustedParent),
		strict:        strict,
	}
}

// Strict reports whether the policy runs in production (strict) mode.
func (p *OriginPolicy) Strict() bool {
	return p.strict
}

// Decision is the outcome of an origin check. Allowed gates the request;
// Recognized is advisory — false means the origin passed only because the
// policy is permissive.
type Decision struct {
	Allowed    bool
	Recognized bool
	Origin     string
}

// Check validates the request's origin. The Origin header wins; when absent
// the Referer's scheme://host is used instead.
func (p *OriginPolicy) Check(r *http.Request) Decision {
	origin := strings.TrimSuffix(r.Header.Get("Origin"), "/")
	if origin == "" {
		origin = refererOrigin(r.Header.Get("Referer"))
	}

	if origin == "" {
		// Nothing to validate: strict mode rejects, permissive mode lets the
		// token check carry the request.
		return Decision{Allowed: !p.strict, Recognized: false}
	}

	if p.allowed[origin] || p.parentMatch(origin) {
		return Decision{Allowed: true, Recognized: true, Origin: origin}
	}
	return Decision{Allowed: !p.strict, Recognized: false, Origin: origin}
}

func (p *OriginPolicy) parentMatch(origin string) bool {
	if p.trustedParent == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()
	return host == p.trustedParent || strings.HasSuffix(host, "."+p.trustedParent)
}

func refererOrigin(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
