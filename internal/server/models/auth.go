package models

import (
	"encoding/json"
	"fmt"
)

// AccessAuth is a method a party must complete before viewing an envelope.
type AccessAuth string

const (
	AccessAuthAccount       AccessAuth = "ACCOUNT"
	AccessAuthTwoFactorAuth AccessAuth = "TWO_FACTOR_AUTH"
)

// ActionAuth is a method a party must complete before acting (signing).
type ActionAuth string

const (
	ActionAuthAccount       ActionAuth = "ACCOUNT"
	ActionAuthPasskey       ActionAuth = "PASSKEY"
	ActionAuthTwoFactorAuth ActionAuth = "TWO_FACTOR_AUTH"
	ActionAuthPassword      ActionAuth = "PASSWORD"
	ActionAuthExplicitNone  ActionAuth = "EXPLICIT_NONE"
)

// AuthOptions holds access and action authentication requirements. On an
// envelope they are global; on a recipient they override the global ones.
type AuthOptions struct {
	AccessAuth []AccessAuth `json:"accessAuth"`
	ActionAuth []ActionAuth `json:"actionAuth"`
}

// Validate rejects unknown methods and EXPLICIT_NONE mixed with other methods.
func (a AuthOptions) Validate() error {
	for _, m := range a.AccessAuth {
		switch m {
		case AccessAuthAccount, AccessAuthTwoFactorAuth:
		default:
			return fmt.Errorf("unknown access auth %q", m)
		}
	}
	for _, m := range a.ActionAuth {
		switch m {
		case ActionAuthAccount, ActionAuthPasskey, ActionAuthTwoFactorAuth, ActionAuthPassword:
		case ActionAuthExplicitNone:
			if len(a.ActionAuth) > 1 {
				return fmt.Errorf("%s cannot be combined with other action auth", m)
			}
		default:
			return fmt.Errorf("unknown action auth %q", m)
		}
	}
	return nil
}

// RequiresTwoFactor reports whether acting needs a signing two-factor token.
func (a AuthOptions) RequiresTwoFactor() bool {
	for _, m := range a.ActionAuth {
		if m == ActionAuthTwoFactorAuth {
			return true
		}
	}
	return false
}

// MarshalAuthOptions renders options for a jsonb column.
func MarshalAuthOptions(a AuthOptions) ([]byte, error) {
	if a.AccessAuth == nil {
		a.AccessAuth = []AccessAuth{}
	}
	if a.ActionAuth == nil {
		a.ActionAuth = []ActionAuth{}
	}
	return json.Marshal(a)
}

// UnmarshalAuthOptions parses a jsonb column; empty input yields zero options.
func UnmarshalAuthOptions(b []byte) (AuthOptions, error) {
	var a AuthOptions
	if len(b) == 0 {
		return a, nil
	}
	err := json.Unmarshal(b, &a)
	return a, err
}
