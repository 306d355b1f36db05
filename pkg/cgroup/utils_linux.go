package cgroup

import (
	"errors"
	"os"
	"path"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// DetectType detects current mounted cgroup type in systemd default path
func DetectType() CgroupType {
	return detectType(basePath)
}

func detectType(p string) CgroupType {
	// if /sys/fs/cgroup is mounted as CGROUPV2 or TMPFS (V1)
	var st unix.Statfs_t
	if err := unix.Statfs(p, &st); err != nil {
		// ignore errors, defalting to CgroupV1
		return CgroupTypeV1
	}
	if st.Type == unix.CGROUP2_SUPER_MAGIC {
		return CgroupTypeV2
	}
	return CgroupTypeV1
}

// getAvailableControllers reads cgroup.controllers of dir
func getAvailableControllers(dir string) (Controllers, error) {
	c, err := readFile(path.Join(dir, cgroupControllers))
	if err != nil {
		return Controllers{}, err
	}
	return controllersFromNames(strings.Fields(string(c))), nil
}

func remove(name string) error {
	if name != "" {
		return os.Remove(name)
	}
	return nil
}

func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}

func writeFile(p string, content []byte) error {
	err := os.WriteFile(p, content, filePerm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, filePerm)
	}
	return err
}
