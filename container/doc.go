// Package container runs commands in isolated Linux namespaces on top of an
// overlay root filesystem, bounded by cgroups and optionally attached to a
// bridge network, and keeps enough state on disk to list, enter, stop and
// remove them later.
//
// # Container start
//
// Create re-executes the current binary as "init" in new UTS, PID, mount,
// network and IPC namespaces, handing it one end of a SOCK_SEQPACKET socket
// as fd 3. While init blocks on that socket the host applies cgroup limits
// and wires the network to its pid, then sends the init config:
//
// - send: initConfig, with the log file fd as SCM_RIGHTS in detach mode
// - reply: ready, or an error carrying errno
// - then: the socket closes on a successful execve, or a second error
// reply reports the failed execve
//
// Init pivots into the merged root, mounts the pseudo filesystems, writes
// resolv.conf, sets the hostname, loads the seccomp filter and execs the
// command. Any failure is reported back and the container never runs.
package container
