//go:build windows

package lsock

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/go-localsocket/lsock/internal/wpipe"
)

// WithAllowedAccounts builds a security descriptor granting the named
// Windows accounts (e.g. "NT AUTHORITY\\NETWORK SERVICE", "BUILTIN\\Users")
// full access to the pipe, resolving each to its SID via LookupAccountName,
// and sets it as o.SecurityDescriptor. This is the idiomatic alternative to
// hand-assembling an SDDL string when the caller only knows account names.
func (o ListenerOptions) WithAllowedAccounts(accounts ...string) (ListenerOptions, error) {
	if len(accounts) == 0 {
		return o, errors.Wrap(wrapErr(ErrInvalidInput, "at least one account is required"), "lsock")
	}

	var aces strings.Builder
	aces.WriteString("D:")
	for _, account := range accounts {
		sid, err := wpipe.LookupSidByName(account)
		if err != nil {
			return o, errors.Wrapf(err, "lsock: resolve account %q", account)
		}
		aces.WriteString("(A;;GA;;;")
		aces.WriteString(sid)
		aces.WriteString(")")
	}

	o.SecurityDescriptor = aces.String()
	return o, nil
}
