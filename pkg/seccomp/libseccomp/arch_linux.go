package libseccomp

import (
	"fmt"
	"sync"

	"github.com/elastic/go-seccomp-bpf/arch"
	libseccomp "github.com/seccomp/libseccomp-golang"

	"github.com/curnrt/curn/pkg/seccomp"
)

// native syscall table, resolved on first use
var nativeArch = sync.OnceValues(func() (*arch.Info, error) {
	return arch.GetInfo("")
})

// ToSyscallName looks up the name of sysno on the native architecture
func ToSyscallName(sysno uint) (string, error) {
	info, err := nativeArch()
	if err != nil {
		return "", err
	}
	if n, ok := info.SyscallNumbers[int(sysno)]; ok {
		return n, nil
	}
	return "", fmt.Errorf("seccomp: no syscall numbered %d on %s", sysno, info.Name)
}

// ToSyscallNumber looks up the number of name on the native architecture
func ToSyscallNumber(name string) (int, error) {
	info, err := nativeArch()
	if err != nil {
		return 0, err
	}
	if n, ok := info.SyscallNames[name]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("seccomp: no syscall named %q on %s", name, info.Name)
}

// ToSeccompAction maps an action onto libseccomp, unknown actions kill
func ToSeccompAction(a seccomp.Action) libseccomp.ScmpAction {
	switch a.Action() {
	case seccomp.ActionAllow:
		return libseccomp.ActAllow
	case seccomp.ActionErrno:
		return libseccomp.ActErrno.SetReturnCode(a.ReturnCode())
	}
	return libseccomp.ActKillProcess
}
