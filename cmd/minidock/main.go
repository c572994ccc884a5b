// Command minidock runs busybox containers in their own namespaces with an
// overlay root, cgroup limits and bridge networking.
package main

import (
	"os"

	"github.com/minidock/minidock/container"
	"github.com/minidock/minidock/pkg/logger"
)

func main() {
	// container init re-executes this binary, it never returns
	container.Init()

	if err := newRootCmd().Execute(); err != nil {
		logger.GetLogger().Error(err)
		os.Exit(1)
	}
}
