// Package trust classifies the source systems that feed ADT events. Events
// from a trusted source may overwrite stale facts regardless of arrival
// order; everything else may only fill in facts that are still missing.
package trust

import "strings"

// DefaultSources is the allow-list used when none is configured.
var DefaultSources = []string{"EPIC"}

// Policy is an immutable allow-list of trusted source systems.
type Policy struct {
	sources map[string]struct{}
}

// NewPolicy builds a policy from source names. Names are compared
// case-insensitively after trimming whitespace; blank names are dropped.
func NewPolicy(sources ...string) Policy {
	p := Policy{sources: make(map[string]struct{}, len(sources))}
	for _, s := range sources {
		s = normalize(s)
		if s == "" {
			continue
		}
		p.sources[s] = struct{}{}
	}
	return p
}

// Default returns the policy built from DefaultSources.
func Default() Policy {
	return NewPolicy(DefaultSources...)
}

// IsTrusted reports whether events from source may overwrite stored facts.
func (p Policy) IsTrusted(source string) bool {
	_, ok := p.sources[normalize(source)]
	return ok
}

// Sources returns the trusted names in no particular order.
func (p Policy) Sources() []string {
	out := make([]string, 0, len(p.sources))
	for s := range p.sources {
		out = append(out, s)
	}
	return out
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
