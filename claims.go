package signin

const (
	ClaimNameIdentifier       = "sub"
	ClaimName                 = "name"
	ClaimRole                 = "role"
	ClaimSecurityStamp        = "security_stamp"
	ClaimAMR                  = "amr"
	ClaimAuthenticationMethod = "authentication_method"
)

const (
	// AMRPassword marks a session established with a password only.
	AMRPassword = "pwd"
	// AMRMultiFactor marks a session established after a second factor.
	AMRMultiFactor = "mfa"
)

// Claim is a single typed assertion about a principal.
type Claim struct {
	Type  string `json:"t"`
	Value string `json:"v"`
}

// ClaimsIdentity groups claims issued under one authentication scheme.
type ClaimsIdentity struct {
	AuthenticationType string  `json:"auth_type"`
	Claims             []Claim `json:"claims,omitempty"`
}

// NewClaimsIdentity returns an identity for the given scheme.
func NewClaimsIdentity(authenticationType string, claims ...Claim) *ClaimsIdentity {
	return &ClaimsIdentity{
		AuthenticationType: authenticationType,
		Claims:             append([]Claim(nil), claims...),
	}
}

// AddClaim appends a claim.
func (i *ClaimsIdentity) AddClaim(c Claim) {
	i.Claims = append(i.Claims, c)
}

// FindFirst returns the first claim of type t.
func (i *ClaimsIdentity) FindFirst(t string) (Claim, bool) {
	if i == nil {
		return Claim{}, false
	}
	for _, c := range i.Claims {
		if c.Type == t {
			return c, true
		}
	}
	return Claim{}, false
}

// Principal is the authenticated subject of a request.
type Principal struct {
	Identities []*ClaimsIdentity `json:"identities"`
}

// NewPrincipal wraps identities into a principal.
func NewPrincipal(identities ...*ClaimsIdentity) *Principal {
	return &Principal{Identities: identities}
}

// Identity returns the first identity, if any.
func (p *Principal) Identity() *ClaimsIdentity {
	if p == nil || len(p.Identities) == 0 {
		return nil
	}
	return p.Identities[0]
}

// FindFirst returns the first claim of type t across all identities.
func (p *Principal) FindFirst(t string) (Claim, bool) {
	if p == nil {
		return Claim{}, false
	}
	for _, identity := range p.Identities {
		if c, ok := identity.FindFirst(t); ok {
			return c, true
		}
	}
	return Claim{}, false
}

// FindFirstValue returns the value of the first claim of type t or "".
func (p *Principal) FindFirstValue(t string) string {
	c, _ := p.FindFirst(t)
	return c.Value
}

// HasClaim reports whether any identity carries the exact claim.
func (p *Principal) HasClaim(t, value string) bool {
	if p == nil {
		return false
	}
	for _, identity := range p.Identities {
		if identity == nil {
			continue
		}
		for _, c := range identity.Claims {
			if c.Type == t && c.Value == value {
				return true
			}
		}
	}
	return false
}

// HasAuthenticationType reports whether any identity was issued under scheme.
func (p *Principal) HasAuthenticationType(scheme string) bool {
	if p == nil {
		return false
	}
	for _, identity := range p.Identities {
		if identity != nil && identity.AuthenticationType == scheme {
			return true
		}
	}
	return false
}
