package ton

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidAddress is returned for malformed wallet addresses.
var ErrInvalidAddress = errors.New("invalid TON address")

var (
	friendlyAddr = regexp.MustCompile(`^[A-Za-z0-9_-]{48}$`)
	rawAddr      = regexp.MustCompile(`^-?[0-9]+:[0-9a-fA-F]{64}$`)
)

// ValidateAddress accepts the 48-character user-friendly form or the raw workchain:hex form.
func ValidateAddress(address string) error {
	address = strings.TrimSpace(address)
	if friendlyAddr.MatchString(address) || rawAddr.MatchString(address) {
		return nil
	}
	return ErrInvalidAddress
}
