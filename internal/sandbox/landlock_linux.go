//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ptrOf returns the uintptr form of a pointer, for use in raw syscalls.
func ptrOf(p any) uintptr {
	switch v := p.(type) {
	case *rulesetAttr:
		return uintptr(unsafe.Pointer(v))
	case *pathBeneathAttr:
		return uintptr(unsafe.Pointer(v))
	default:
		panic("sandbox: ptrOf: unsupported type")
	}
}

// Landlock ABI v2 constants (linux/landlock.h). Access bits cover the
// filesystem rule type; ABI v2 adds LANDLOCK_ACCESS_FS_REFER which we
// don't request, keeping the ruleset compatible with ABI v1 kernels.
const (
	landlockCreateRuleset  = 444
	landlockAddRule        = 445
	landlockRestrictSelf   = 446
	landlockRuleTypePath   = 1
	sizeOfRulesetAttr      = 8 // 1 x uint64 (handled_access_fs)

	accessFSExecute    = 1 << 0
	accessFSWriteFile  = 1 << 1
	accessFSReadFile   = 1 << 2
	accessFSReadDir    = 1 << 3
	accessFSRemoveDir  = 1 << 4
	accessFSRemoveFile = 1 << 5
	accessFSMakeChar   = 1 << 6
	accessFSMakeDir    = 1 << 7
	accessFSMakeReg    = 1 << 8
	accessFSMakeSock   = 1 << 9
	accessFSMakeFifo   = 1 << 10
	accessFSMakeBlock  = 1 << 11
	accessFSMakeSym    = 1 << 12
)

var accessFSReadOnly = accessFSExecute | accessFSReadFile | accessFSReadDir

var accessFSReadWrite = accessFSReadOnly | accessFSWriteFile | accessFSRemoveDir |
	accessFSRemoveFile | accessFSMakeChar | accessFSMakeDir | accessFSMakeReg |
	accessFSMakeSock | accessFSMakeFifo | accessFSMakeBlock | accessFSMakeSym

// rulesetAttr mirrors struct landlock_ruleset_attr.
type rulesetAttr struct {
	handledAccessFS uint64
}

// pathBeneathAttr mirrors struct landlock_path_beneath_attr.
type pathBeneathAttr struct {
	allowedAccess uint64
	parentFD      int32
	_             [4]byte // padding to match C struct layout
}

// probeLandlock reports whether the running kernel supports Landlock by
// attempting to create a ruleset with ABI-probing semantics.
func probeLandlock() bool {
	attr := rulesetAttr{handledAccessFS: uint64(accessFSReadWrite)}
	fd, _, errno := unix.Syscall(landlockCreateRuleset, ptrOf(&attr), sizeOfRulesetAttr, 0)
	if errno != 0 {
		return false
	}
	unix.Close(int(fd))
	return true
}

// enforceLandlock builds a ruleset granting read-write access under every
// path in rw and read-only access under every path in ro, then restricts
// the calling process (and all its future descendants) to it.
func enforceLandlock(rw, ro []string) error {
	attr := rulesetAttr{handledAccessFS: uint64(accessFSReadWrite)}
	rulesetFD, _, errno := unix.Syscall(landlockCreateRuleset, ptrOf(&attr), sizeOfRulesetAttr, 0)
	if errno != 0 {
		return fmt.Errorf("landlock_create_ruleset: %w", errno)
	}
	defer unix.Close(int(rulesetFD))

	for _, p := range rw {
		if err := addPathRule(int(rulesetFD), p, accessFSReadWrite); err != nil {
			return err
		}
	}
	for _, p := range ro {
		if err := addPathRule(int(rulesetFD), p, accessFSReadOnly); err != nil {
			return err
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}

	if _, _, errno := unix.Syscall(landlockRestrictSelf, uintptr(rulesetFD), 0, 0); errno != 0 {
		return fmt.Errorf("landlock_restrict_self: %w", errno)
	}
	return nil
}

// addPathRule opens p (ignoring directories that don't exist) and attaches
// a path-beneath rule for the given access bitmask.
func addPathRule(rulesetFD int, p string, access int) error {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to confine if the directory was never created
		}
		return fmt.Errorf("open %s for landlock rule: %w", p, err)
	}
	defer f.Close()

	attr := pathBeneathAttr{
		allowedAccess: uint64(access),
		parentFD:      int32(f.Fd()),
	}
	_, _, errno := unix.Syscall6(landlockAddRule, uintptr(rulesetFD), landlockRuleTypePath, ptrOf(&attr), 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("landlock_add_rule(%s): %w", p, errno)
	}
	return nil
}
