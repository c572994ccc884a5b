package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/minidock/minidock/pkg/state"
)

// List returns all records. Running records whose process is gone are
// marked exited.
func (r *Runtime) List() ([]*state.Record, error) {
	recs, err := r.Store.List()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Status != state.Running {
			continue
		}
		pid, err := rec.Pid()
		if err == nil && processAlive(pid) {
			continue
		}
		rec.Status, rec.PID = state.Exited, ""
		if err := r.Store.Save(rec); err != nil {
			r.log.Warn("cannot update record", "name", rec.Name, "err", err)
		}
	}
	return recs, nil
}

// processAlive reports whether pid exists and is not a zombie
func processAlive(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// the state follows the parenthesized command name
	i := bytes.LastIndexByte(b, ')')
	if i < 0 || i+2 >= len(b) {
		return true
	}
	switch b[i+2] {
	case 'Z', 'X', 'x':
		return false
	}
	return true
}

// MemoryUsage returns the memory charged to the cgroup of rec
func (r *Runtime) MemoryUsage(rec *state.Record) (uint64, error) {
	return r.cgroupBuilder(rec.Resources).Open(rec.ID).MemoryUsage()
}

// Logs copies the log of the container called name to w
func (r *Runtime) Logs(name string, w io.Writer) error {
	if _, err := r.Store.Load(name); err != nil {
		return err
	}
	f, err := os.Open(r.Store.LogPath(name))
	if err != nil {
		return fmt.Errorf("container: logs of %s: %w", name, err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Stop sends SIGTERM to the container and marks it stopped without waiting
// for it to exit
func (r *Runtime) Stop(name string) error {
	rec, err := r.Store.Load(name)
	if err != nil {
		return err
	}
	if rec.Status != state.Running {
		return fmt.Errorf("%w: %s is %s", state.ErrNotRunning, name, rec.Status)
	}
	pid, err := rec.Pid()
	if err != nil {
		return err
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("container: stop %s: %w", name, err)
	}
	rec.Status, rec.PID = state.Stopped, ""
	if err := r.Store.Save(rec); err != nil {
		return err
	}
	r.log.Info("container stopped", "name", name, "pid", pid)
	return nil
}

// Remove releases everything a non-running container holds and deletes its
// record
func (r *Runtime) Remove(name string) error {
	rec, err := r.Store.Load(name)
	if err != nil {
		return err
	}
	if rec.Status == state.Running {
		return fmt.Errorf("%w: stop %s before removing it", state.ErrRunning, name)
	}
	if err := r.killLeftovers(rec); err != nil {
		return fmt.Errorf("container: remove %s: %w", name, err)
	}
	if err := r.release(rec); err != nil {
		return fmt.Errorf("container: remove %s: %w", name, err)
	}
	r.log.Info("container removed", "name", name)
	return nil
}

// killLeftovers kills the tasks still in the cgroup of a container that is
// no longer running and waits for them to exit. The init of a pid namespace
// ignores SIGTERM unless it installed a handler, so stop may leave it alive.
func (r *Runtime) killLeftovers(rec *state.Record) error {
	pids, err := r.cgroupBuilder(rec.Resources).Open(rec.ID).Processes()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("cannot list cgroup processes", "name", rec.Name, "err", err)
		}
		return nil
	}
	var alive []int
	for _, pid := range pids {
		if processAlive(pid) {
			alive = append(alive, pid)
		}
	}
	if len(alive) == 0 {
		return nil
	}
	r.log.Warn("killing leftover processes", "name", rec.Name, "pids", alive)
	for _, pid := range alive {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("kill %d: %w", pid, err)
		}
	}
	deadline := time.Now().Add(killTimeout)
	for {
		n := 0
		for _, pid := range alive {
			if processAlive(pid) {
				n++
			}
		}
		if n == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%d processes still alive after SIGKILL", n)
		}
		time.Sleep(killPoll)
	}
}
