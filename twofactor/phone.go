package twofactor

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	signin "github.com/goliatone/go-signin"
	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used to parse numbers without an international prefix.
const DefaultRegion = "US"

// NormalizePhone parses number and returns it in E.164 form.
func NormalizePhone(number, region string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", goerrors.New("phone number is empty", goerrors.CategoryBadInput)
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid phone number")
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"number": number})
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// PhoneDestination resolves the E.164 phone number of users that expose
// GetPhone.
func PhoneDestination(region string) DestinationFunc {
	return func(_ context.Context, user signin.UserIdentity) (string, error) {
		p, ok := user.(interface{ GetPhone() string })
		if !ok {
			return "", signin.ErrNotSupported
		}
		return NormalizePhone(p.GetPhone(), region)
	}
}

// EmailDestination resolves the email of users that expose GetEmail.
func EmailDestination() DestinationFunc {
	return func(_ context.Context, user signin.UserIdentity) (string, error) {
		e, ok := user.(interface{ GetEmail() string })
		if !ok || strings.TrimSpace(e.GetEmail()) == "" {
			return "", signin.ErrNotSupported
		}
		return strings.TrimSpace(e.GetEmail()), nil
	}
}
