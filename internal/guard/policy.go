package guard

import "strings"

// Classification is the access class of a request path
type Classification int

const (
	// Public paths pass through before any token inspection
	Public Classification = iota
	// Protected paths require a resolvable credential
	Protected
)

// Policy is an ordered set of path prefixes. A path's classification is the
// first matching prefix; anything unmatched defaults to protected. The
// policy is static for the process lifetime.
type Policy struct {
	rules []rule
}

type rule struct {
	prefix string
	class  Classification
}

// NewPolicy builds a policy from public path prefixes
func NewPolicy(publicPrefixes []string) *Policy {
	p := &Policy{}
	for _, prefix := range publicPrefixes {
		p.Add(prefix, Public)
	}
	return p
}

// Add appends a prefix rule. Order matters: earlier rules win.
func (p *Policy) Add(prefix string, class Classification) {
	if prefix == "" {
		return
	}
	p.rules = append(p.rules, rule{prefix: prefix, class: class})
}

// Classify returns the access class for a request path
func (p *Policy) Classify(path string) Classification {
	for _, r := range p.rules {
		if strings.HasPrefix(path, r.prefix) {
			return r.class
		}
	}
	return Protected
}
