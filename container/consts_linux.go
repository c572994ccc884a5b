package container

import (
	"time"

	"golang.org/x/sys/unix"
)

const (
	initArg = "init"

	// init receives its end of the socket at fd 3
	initFd = 3

	cloneFlags = unix.CLONE_NEWUTS | unix.CLONE_NEWPID | unix.CLONE_NEWNS |
		unix.CLONE_NEWNET | unix.CLONE_NEWIPC

	selfExe    = "/proc/self/exe"
	resolvConf = "/etc/resolv.conf"

	// how long rm waits for killed leftovers
	killTimeout = 5 * time.Second
	killPoll    = 20 * time.Millisecond
)

// PathEnv defines path environment variable for the container process
const PathEnv = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

var defaultEnv = []string{
	PathEnv,
	"HOME=/root",
	"TERM=xterm",
}
