package signin

import "strings"

// SchemeSet names the four authentication schemes a coordinator owns.
// Distinct sets keep two coordinators from sharing session state.
type SchemeSet struct {
	Primary           string `json:"primary" yaml:"primary"`
	External          string `json:"external" yaml:"external"`
	TwoFactor         string `json:"two_factor" yaml:"two_factor"`
	TwoFactorRemember string `json:"two_factor_remember" yaml:"two_factor_remember"`
}

// BackOfficeSchemes is the scheme set used by back-office sign-in.
var BackOfficeSchemes = SchemeSet{
	Primary:           "backoffice",
	External:          "backoffice.external",
	TwoFactor:         "backoffice.2fa",
	TwoFactorRemember: "backoffice.2fa.remember",
}

// MemberSchemes is the scheme set used by member sign-in.
var MemberSchemes = SchemeSet{
	Primary:           "member",
	External:          "member.external",
	TwoFactor:         "member.2fa",
	TwoFactorRemember: "member.2fa.remember",
}

// All returns the scheme names in a stable order.
func (s SchemeSet) All() []string {
	return []string{s.Primary, s.External, s.TwoFactor, s.TwoFactorRemember}
}

// Validate ensures every scheme is set and no two collide.
func (s SchemeSet) Validate() error {
	seen := make(map[string]struct{}, 4)
	for _, name := range s.All() {
		name = strings.TrimSpace(name)
		if name == "" {
			return ErrInvalidSchemeSet
		}
		if _, ok := seen[name]; ok {
			return annotate(ErrInvalidSchemeSet, map[string]any{
				"duplicate": name,
			})
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Overlaps reports whether two sets share any scheme name.
func (s SchemeSet) Overlaps(other SchemeSet) bool {
	for _, a := range s.All() {
		for _, b := range other.All() {
			if a == b {
				return true
			}
		}
	}
	return false
}
