//go:build windows

// Hand-written syscall bindings for the Win32 named-pipe entry points this
// package needs, in the style mkwinsyscall would generate; the generator
// itself is not part of this module (see DESIGN.md).

package wpipe

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var _ unsafe.Pointer

var (
	errERROR_EINVAL error = syscall.EINVAL
)

func errnoErr(e syscall.Errno) error {
	if e == 0 {
		return errERROR_EINVAL
	}
	return e
}

var (
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procConnectNamedPipe          = modkernel32.NewProc("ConnectNamedPipe")
	procCreateNamedPipeW          = modkernel32.NewProc("CreateNamedPipeW")
	procDisconnectNamedPipe       = modkernel32.NewProc("DisconnectNamedPipe")
	procGetNamedPipeInfo          = modkernel32.NewProc("GetNamedPipeInfo")
	procGetNamedPipeClientProcessId = modkernel32.NewProc("GetNamedPipeClientProcessId")
	procGetNamedPipeServerProcessId = modkernel32.NewProc("GetNamedPipeServerProcessId")
	procLookupAccountNameW        = modadvapi32.NewProc("LookupAccountNameW")
	procConvertSidToStringSidW  = modadvapi32.NewProc("ConvertSidToStringSidW")
	procConvertStringSDToSD     = modadvapi32.NewProc("ConvertStringSecurityDescriptorToSecurityDescriptorW")
	procGetSecurityDescriptorLen = modadvapi32.NewProc("GetSecurityDescriptorLength")
)

func connectNamedPipe(pipe windows.Handle, o *windows.Overlapped) (err error) {
	r1, _, e1 := syscall.Syscall(procConnectNamedPipe.Addr(), 2, uintptr(pipe), uintptr(unsafe.Pointer(o)), 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func createNamedPipe(name string, flags uint32, pipeMode uint32, maxInstances uint32, outSize uint32, inSize uint32, defaultTimeout uint32, sa *windows.SecurityAttributes) (handle windows.Handle, err error) {
	namep, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	r0, _, e1 := syscall.Syscall9(procCreateNamedPipeW.Addr(), 8,
		uintptr(unsafe.Pointer(namep)),
		uintptr(flags),
		uintptr(pipeMode),
		uintptr(maxInstances),
		uintptr(outSize),
		uintptr(inSize),
		uintptr(defaultTimeout),
		uintptr(unsafe.Pointer(sa)),
		0)
	handle = windows.Handle(r0)
	if handle == windows.InvalidHandle {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func disconnectNamedPipe(pipe windows.Handle) (err error) {
	r1, _, e1 := syscall.Syscall(procDisconnectNamedPipe.Addr(), 1, uintptr(pipe), 0, 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func getNamedPipeInfo(pipe windows.Handle, flags *uint32, outSize *uint32, inSize *uint32, maxInstances *uint32) (err error) {
	r1, _, e1 := syscall.Syscall6(procGetNamedPipeInfo.Addr(), 5,
		uintptr(pipe),
		uintptr(unsafe.Pointer(flags)),
		uintptr(unsafe.Pointer(outSize)),
		uintptr(unsafe.Pointer(inSize)),
		uintptr(unsafe.Pointer(maxInstances)),
		0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func getNamedPipeClientProcessId(pipe windows.Handle, pid *uint32) (err error) {
	r1, _, e1 := syscall.Syscall(procGetNamedPipeClientProcessId.Addr(), 2, uintptr(pipe), uintptr(unsafe.Pointer(pid)), 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func getNamedPipeServerProcessId(pipe windows.Handle, pid *uint32) (err error) {
	r1, _, e1 := syscall.Syscall(procGetNamedPipeServerProcessId.Addr(), 2, uintptr(pipe), uintptr(unsafe.Pointer(pid)), 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func lookupAccountName(systemName *uint16, accountName string, sid *byte, sidSize *uint32, refDomain *uint16, refDomainSize *uint32, sidNameUse *uint32) (err error) {
	accountNamep, err := syscall.UTF16PtrFromString(accountName)
	if err != nil {
		return err
	}
	r1, _, e1 := syscall.Syscall9(procLookupAccountNameW.Addr(), 7,
		uintptr(unsafe.Pointer(systemName)),
		uintptr(unsafe.Pointer(accountNamep)),
		uintptr(unsafe.Pointer(sid)),
		uintptr(unsafe.Pointer(sidSize)),
		uintptr(unsafe.Pointer(refDomain)),
		uintptr(unsafe.Pointer(refDomainSize)),
		uintptr(unsafe.Pointer(sidNameUse)),
		0, 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func convertSidToStringSid(sid *byte, str **uint16) (err error) {
	r1, _, e1 := syscall.Syscall(procConvertSidToStringSidW.Addr(), 2, uintptr(unsafe.Pointer(sid)), uintptr(unsafe.Pointer(str)), 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func convertStringSecurityDescriptorToSecurityDescriptor(str string, revision uint32, sd *uintptr, size *uint32) (err error) {
	strp, err := syscall.UTF16PtrFromString(str)
	if err != nil {
		return err
	}
	r1, _, e1 := syscall.Syscall6(procConvertStringSDToSD.Addr(), 4,
		uintptr(unsafe.Pointer(strp)),
		uintptr(revision),
		uintptr(unsafe.Pointer(sd)),
		uintptr(unsafe.Pointer(size)),
		0, 0)
	if r1 == 0 {
		err = errnoErr(e1.(syscall.Errno))
	}
	return
}

func getSecurityDescriptorLength(sd uintptr) (length uint32) {
	r0, _, _ := syscall.Syscall(procGetSecurityDescriptorLen.Addr(), 1, sd, 0, 0)
	return uint32(r0)
}
