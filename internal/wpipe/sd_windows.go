//go:build windows

package wpipe

import (
	"syscall"
	"unsafe"
)

const cERROR_NONE_MAPPED = syscall.Errno(1332)

// AccountLookupError wraps a failed account-name-to-SID lookup.
type AccountLookupError struct {
	Name string
	Err  error
}

func (e *AccountLookupError) Error() string {
	if e.Name == "" {
		return "wpipe: lookup account: empty account name specified"
	}
	if e.Err == cERROR_NONE_MAPPED {
		return "wpipe: lookup account " + e.Name + ": not found"
	}
	return "wpipe: lookup account " + e.Name + ": " + e.Err.Error()
}

// SddlConversionError wraps a failed SDDL-to-binary security descriptor
// conversion.
type SddlConversionError struct {
	Sddl string
	Err  error
}

func (e *SddlConversionError) Error() string {
	return "wpipe: convert " + e.Sddl + ": " + e.Err.Error()
}

// LookupSidByName looks up the string SID of an account by name. Used to
// build custom security descriptors ahead of handing an SDDL string to
// sddlToSecurityDescriptor.
func LookupSidByName(name string) (sid string, err error) {
	if name == "" {
		return "", &AccountLookupError{name, cERROR_NONE_MAPPED}
	}

	var sidSize, sidNameUse, refDomainSize uint32
	err = lookupAccountName(nil, name, nil, &sidSize, nil, &refDomainSize, &sidNameUse)
	if err != nil && err != syscall.ERROR_INSUFFICIENT_BUFFER { //nolint:errorlint
		return "", &AccountLookupError{name, err}
	}
	sidBuffer := make([]byte, sidSize)
	refDomainBuffer := make([]uint16, refDomainSize)
	err = lookupAccountName(nil, name, &sidBuffer[0], &sidSize, &refDomainBuffer[0], &refDomainSize, &sidNameUse)
	if err != nil {
		return "", &AccountLookupError{name, err}
	}
	var strBuffer *uint16
	err = convertSidToStringSid(&sidBuffer[0], &strBuffer)
	if err != nil {
		return "", &AccountLookupError{name, err}
	}
	sid = syscall.UTF16ToString((*[0xffff]uint16)(unsafe.Pointer(strBuffer))[:])
	localFree(uintptr(unsafe.Pointer(strBuffer))) //nolint:errcheck
	return sid, nil
}

// sddlToSecurityDescriptor converts an SDDL string into the binary form
// CreateNamedPipe's SecurityAttributes expects.
func sddlToSecurityDescriptor(sddl string) ([]byte, error) {
	var sdBuffer uintptr
	err := convertStringSecurityDescriptorToSecurityDescriptor(sddl, 1, &sdBuffer, nil)
	if err != nil {
		return nil, &SddlConversionError{sddl, err}
	}
	defer localFree(sdBuffer) //nolint:errcheck
	sd := make([]byte, getSecurityDescriptorLength(sdBuffer))
	copy(sd, (*[0xffff]byte)(unsafe.Pointer(sdBuffer))[:len(sd)])
	return sd, nil
}

func localFree(mem uintptr) error {
	_, _, _ = procLocalFree.Call(mem)
	return nil
}

var procLocalFree = modkernel32.NewProc("LocalFree")
