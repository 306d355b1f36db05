// Package cgroup creates the cgroup v2 node of a container under the systemd
// mount path (i.e. /sys/fs/cgroup), applies its limits and removes it.
//
// Available cgroup controller:
//
//	cpu
//	memory
//	pids
//	io
//
// cgroup v1 hierarchies are not supported.
package cgroup
