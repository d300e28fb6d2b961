package convo

// MatchFunc decides whether a conversation's counterpart reference matches
// the currently open thread reference.
type MatchFunc func(counterpartRef, openRef string) bool

// DefaultMatch accepts the bare slug or its at-sign-prefixed handle form.
// The platform's thread routes carry either representation depending on
// whether the counterpart is a business (slug) or a user (handle); whether
// the two forms can name different counterparts is unresolved product-side,
// so the comparison stays pluggable instead of canonicalizing one form.
func DefaultMatch(counterpartRef, openRef string) bool {
	if openRef == "" || counterpartRef == "" {
		return false
	}
	return counterpartRef == openRef || "@"+counterpartRef == openRef
}
