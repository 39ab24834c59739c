package recommend

import (
	"fmt"
	"strings"
)

// Filter keys accepted by all strategies. Filters narrow the candidate pool
// before score-based truncation, so a filtered request can still fill its
// requested count from deeper candidates.
const (
	// FilterColorIdentity restricts candidates to cards whose color
	// identity is a subset of the given colors, e.g. "WU". "C" or ""
	// matches only colorless cards.
	FilterColorIdentity = "color_identity"

	// FilterTypeLine restricts candidates to cards whose type line
	// contains the given substring, case-insensitively.
	FilterTypeLine = "type_line"
)

// Filters is an optional mapping of named predicates applied to candidate
// cards. Unknown keys are rejected up front.
type Filters map[string]string

// Validate rejects unrecognized filter keys.
func (f Filters) Validate() error {
	for key := range f {
		switch key {
		case FilterColorIdentity, FilterTypeLine:
		default:
			return &InvalidArgumentError{Reason: fmt.Sprintf("unknown filter %q", key)}
		}
	}
	return nil
}

// match reports whether a candidate passes every filter. Candidates with no
// attribute record pass vacuously when no lookup is available: filters
// without a catalog would otherwise empty every result set.
func (f Filters) match(cardKey string, lookup CardInfoLookup) bool {
	if len(f) == 0 {
		return true
	}
	if lookup == nil {
		return true
	}

	info, ok := lookup(cardKey)
	if !ok {
		return false
	}

	if colors, present := f[FilterColorIdentity]; present {
		if !identityWithin(info.ColorIdentity, colors) {
			return false
		}
	}

	if substr, present := f[FilterTypeLine]; present {
		if !strings.Contains(strings.ToLower(info.TypeLine), strings.ToLower(substr)) {
			return false
		}
	}

	return true
}

// identityWithin reports whether every color in identity appears in allowed.
// "C" in allowed is the explicit colorless marker and adds nothing.
func identityWithin(identity []string, allowed string) bool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, r := range strings.ToUpper(allowed) {
		if r == 'C' {
			continue
		}
		allowedSet[string(r)] = true
	}

	for _, color := range identity {
		if !allowedSet[strings.ToUpper(color)] {
			return false
		}
	}
	return true
}
