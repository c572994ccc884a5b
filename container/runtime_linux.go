package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/minidock/minidock/config"
	"github.com/minidock/minidock/pkg/cgroup"
	"github.com/minidock/minidock/pkg/logger"
	"github.com/minidock/minidock/pkg/network"
	"github.com/minidock/minidock/pkg/state"
	"github.com/minidock/minidock/pkg/volume"
	"github.com/minidock/minidock/pkg/workspace"
)

// Runtime creates containers and drives them through their records
type Runtime struct {
	Store      *state.Store
	Workspaces *workspace.Manager
	Network    *network.Manager

	cfg *config.Config
	exe string
	log *log.Logger
}

// Options describe a container to create
type Options struct {
	Name      string
	Args      []string
	Env       []string
	Resources cgroup.Resources
	// Volume is a "host:container" bind mount
	Volume  string
	Network string
	Ports   []string
	// Commit archives the root as this image after a foreground run
	Commit string
	Detach bool

	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

// New creates a runtime from cfg
func New(cfg *config.Config) *Runtime {
	return &Runtime{
		Store:      &state.Store{Root: cfg.StateDir},
		Workspaces: workspace.NewManager(cfg.RootDir, cfg.BaseImage),
		Network:    network.NewManager(cfg.NetworkDir, cfg.IPAMFile, cfg.DefaultNetwork, cfg.DefaultSubnet),
		cfg:        cfg,
		exe:        selfExe,
		log:        logger.For("container"),
	}
}

func (r *Runtime) cgroupBuilder(res cgroup.Resources) *cgroup.Builder {
	return cgroup.NewBuilderFor(r.cfg.CgroupRoot, r.cfg.CgroupPrefix, res)
}

// Create starts a container. A detached container is left running and its
// record returned. A foreground container is waited for, committed when
// asked to, and all its resources are released; the returned record then
// carries the exit code. Any setup failure unwinds every completed step.
func (r *Runtime) Create(ctx context.Context, opts Options) (rec *state.Record, err error) {
	if len(opts.Args) == 0 {
		return nil, errors.New("container: no command")
	}
	res := opts.Resources
	if res.MemoryBytes == 0 {
		n, err := r.cfg.MemoryBytes()
		if err != nil {
			return nil, fmt.Errorf("container: default memory: %w", err)
		}
		res.MemoryBytes = uint64(n)
	}
	var vol *volume.Spec
	if opts.Volume != "" {
		v := volume.Parse(opts.Volume)
		if err := v.Validate(); err != nil {
			return nil, err
		}
		vol = &v
	}

	id := state.NewID()
	name := opts.Name
	if name == "" {
		name = id
	}
	rec = &state.Record{
		ID:        id,
		Name:      name,
		Command:   strings.Join(opts.Args, " "),
		CreatedAt: time.Now().Format(state.TimeFormat),
		Status:    state.Created,
		Image:     r.cfg.BaseImage,
		Volume:    vol,
		Resources: res,
		Detached:  opts.Detach,
	}
	lg := r.log.With("name", name, "id", id)

	var undo undoStack
	defer func() {
		if err != nil {
			if uerr := undo.unwind(); uerr != nil {
				lg.Error("unwind incomplete", "err", uerr)
			}
		}
	}()

	// claims the name
	if err := r.Store.Create(rec); err != nil {
		return nil, err
	}
	undo.push("record", func() error { return r.Store.Remove(name) })

	ws, err := r.Workspaces.Create(ctx, id, vol)
	if err != nil {
		return nil, err
	}
	undo.push("workspace", ws.Destroy)

	sio := stdio{in: opts.Stdin, out: opts.Stdout, err: opts.Stderr}
	var logFile *os.File
	if opts.Detach {
		if logFile, err = r.Store.OpenLog(name); err != nil {
			return nil, fmt.Errorf("container: open log: %w", err)
		}
		defer logFile.Close()
		sio = stdio{}
	}
	p, err := startInit(r.exe, sio, opts.Detach)
	if err != nil {
		return nil, err
	}
	undo.push("process", func() error { p.kill(); return nil })
	pid := p.Pid()
	lg.Debug("init started", "pid", pid)

	cgb := r.cgroupBuilder(res)
	if _, err := cgb.FilterByEnv(); err != nil {
		lg.Warn("cannot read available cgroup controllers", "err", err)
	}
	cg, err := cgb.Build(id)
	if err != nil {
		return nil, fmt.Errorf("container: cgroup: %w", err)
	}
	undo.push("cgroup", cg.Destroy)
	if err := cg.Apply(pid, res); err != nil {
		return nil, fmt.Errorf("container: cgroup: %w", err)
	}

	if opts.Network != "" {
		ep, err := r.Network.Connect(id, opts.Network, pid, opts.Ports)
		if err != nil {
			return nil, err
		}
		undo.push("network", func() error { return r.Network.Disconnect(ep) })
		rec.Network = ep
	} else if len(opts.Ports) > 0 {
		lg.Warn("port mappings need a network, ignored", "ports", opts.Ports)
	}

	if err := p.configure(&initConfig{
		ID:          id,
		Root:        ws.Merged,
		Args:        opts.Args,
		Env:         opts.Env,
		Hostname:    id,
		Nameservers: r.cfg.Nameservers,
		Seccomp:     r.cfg.Seccomp,
	}, logFile); err != nil {
		return nil, err
	}
	if err := p.waitReady(); err != nil {
		return nil, fmt.Errorf("container: init: %w", err)
	}

	rec.Status = state.Running
	rec.PID = strconv.Itoa(pid)
	if err := r.Store.Save(rec); err != nil {
		return nil, err
	}
	undo.commit()
	lg.Info("container started", "pid", pid, "detach", opts.Detach)

	if opts.Detach {
		p.release()
		return rec, nil
	}
	return r.wait(ctx, rec, p, ws, opts.Commit)
}

// wait waits for a foreground container and releases everything it held
func (r *Runtime) wait(ctx context.Context, rec *state.Record, p *initProcess, ws *workspace.Workspace, commit string) (*state.Record, error) {
	p.socket.Close()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.cmd.Process.Kill()
		case <-done:
		}
	}()
	code, err := p.wait()
	close(done)
	if err != nil {
		return rec, fmt.Errorf("container: wait: %w", err)
	}
	rec.Status, rec.PID, rec.ExitCode = state.Exited, "", code
	r.log.Info("container exited", "name", rec.Name, "status", code)

	var errs []error
	if err := r.Store.Save(rec); err != nil {
		errs = append(errs, err)
	}
	if commit != "" {
		if _, err := ws.Commit(ctx, commit); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.release(rec); err != nil {
		errs = append(errs, err)
	}
	return rec, errors.Join(errs...)
}

// release frees the network, cgroup and workspace of rec and removes its
// record. The record is kept when anything else failed so rm can retry.
func (r *Runtime) release(rec *state.Record) error {
	var errs []error
	if rec.Network != nil {
		if err := r.Network.Disconnect(rec.Network); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.cgroupBuilder(rec.Resources).Open(rec.ID).Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("container: cgroup: %w", err))
	}
	ws, err := r.Workspaces.Open(rec.ID, rec.Volume)
	if err == nil {
		err = ws.Destroy()
	}
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return r.Store.Remove(rec.Name)
}
