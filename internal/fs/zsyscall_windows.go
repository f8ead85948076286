//go:build windows

// Hand-written in the style mkwinsyscall would produce for the single //sys
// declaration in fs.go; the generator itself is not part of this module.

package fs

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
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateFileW = modkernel32.NewProc("CreateFileW")
)

func CreateFile(name string, access AccessMask, mode FileShareMode, sa *syscall.SecurityAttributes, createmode FileCreationDisposition, attrs FileAttribute, templatefile windows.Handle) (handle windows.Handle, err error) {
	namep, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	r0, _, e1 := syscall.Syscall9(procCreateFileW.Addr(), 7,
		uintptr(unsafe.Pointer(namep)),
		uintptr(access),
		uintptr(mode),
		uintptr(unsafe.Pointer(sa)),
		uintptr(createmode),
		uintptr(attrs),
		uintptr(templatefile),
		0, 0)
	handle = windows.Handle(r0)
	if handle == windows.InvalidHandle {
		err = errnoErr(syscall.Errno(e1))
	}
	return handle, err
}
