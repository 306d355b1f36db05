// Package forkexec starts a process with raw clone and runs the container setup
// sequence in the child with raw syscalls only: hostname, mount plan, user
// namespace negotiation, credentials, capability restriction, seccomp and execve.
//
// seccomp with TSYNC requires kernel >= 3.17
// unshare cgroup namespace requires kernel >= 4.6
package forkexec
