package signin

// Outcome is the result of a sign-in step. Expected login branches are
// reported as outcomes, never as errors.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeSuccess
	OutcomeLockedOut
	OutcomeTwoFactorRequired
)

// RejectionMessage is the only message callers should surface for failed
// and locked out attempts, so unknown users look like wrong passwords.
const RejectionMessage = "invalid username or password"

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeSuccess:
		return "success"
	case OutcomeLockedOut:
		return "locked_out"
	case OutcomeTwoFactorRequired:
		return "two_factor_required"
	default:
		return "unknown"
	}
}

// Succeeded reports whether a full session was issued.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess
}

// IsLockedOut reports whether the account is locked.
func (o Outcome) IsLockedOut() bool {
	return o == OutcomeLockedOut
}

// RequiresTwoFactor reports whether a two-factor challenge was issued.
func (o Outcome) RequiresTwoFactor() bool {
	return o == OutcomeTwoFactorRequired
}

// Known reports whether o is one of the declared outcomes.
func (o Outcome) Known() bool {
	switch o {
	case OutcomeFailed, OutcomeSuccess, OutcomeLockedOut, OutcomeTwoFactorRequired:
		return true
	}
	return false
}

// RejectionMessage maps an outcome to the user facing rejection text.
// Success and two-factor outcomes have no rejection message.
func (o Outcome) RejectionMessage() string {
	switch o {
	case OutcomeSuccess, OutcomeTwoFactorRequired:
		return ""
	default:
		return RejectionMessage
	}
}
