// Package state persists container records under a state root, one
// directory per container name holding config.json and container.log.
package state

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minidock/minidock/pkg/cgroup"
	"github.com/minidock/minidock/pkg/network"
	"github.com/minidock/minidock/pkg/volume"
)

// Status is the lifecycle state of a container
type Status string

// container statuses
const (
	Created Status = "created"
	Running Status = "running"
	Stopped Status = "stopped"
	Exited  Status = "exited"
)

// IDLen is the length of a container id
const IDLen = 10

var (
	// ErrNotFound is returned for names without a record
	ErrNotFound = errors.New("state: container not found")
	// ErrExists is returned when a record for the name is already present
	ErrExists = errors.New("state: container already exists")
	// ErrRunning is returned when an operation requires a non-running container
	ErrRunning = errors.New("state: container is running")
	// ErrNotRunning is returned when an operation requires a running container
	ErrNotRunning = errors.New("state: container is not running")
)

// Record is the persisted description of one container
type Record struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	PID       string            `json:"pid"`
	Command   string            `json:"command"`
	CreatedAt string            `json:"createTime"`
	Status    Status            `json:"status"`
	Image     string            `json:"image,omitempty"`
	Volume    *volume.Spec      `json:"volume,omitempty"`
	Resources cgroup.Resources  `json:"resources"`
	Network   *network.Endpoint `json:"network,omitempty"`
	Detached  bool              `json:"detached"`
	// ExitCode is set once a foreground container has exited
	ExitCode int `json:"exit_code,omitempty"`
}

// TimeFormat is the layout of CreatedAt
const TimeFormat = "2006-01-02 15:04:05"

// NewID returns a fresh container id of IDLen lowercase hex characters
func NewID() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:IDLen]
}

// Pid returns the numeric pid of a running container
func (r *Record) Pid() (int, error) {
	if r.PID == "" {
		return 0, fmt.Errorf("state: %s has no pid", r.Name)
	}
	pid, err := strconv.Atoi(r.PID)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("state: %s has invalid pid %q", r.Name, r.PID)
	}
	return pid, nil
}

// CreatedTime returns the creation time, zero when unparsable
func (r *Record) CreatedTime() time.Time {
	t, _ := time.ParseInLocation(TimeFormat, r.CreatedAt, time.Local)
	return t
}

// Validate checks that status and pid agree
func (r *Record) Validate() error {
	if r.ID == "" || r.Name == "" {
		return errors.New("state: record without id or name")
	}
	switch r.Status {
	case Running:
		if _, err := r.Pid(); err != nil {
			return err
		}
	case Stopped, Exited:
		if r.PID != "" {
			return fmt.Errorf("state: %s is %s but has pid %s", r.Name, r.Status, r.PID)
		}
	case Created:
	default:
		return fmt.Errorf("state: %s has unknown status %q", r.Name, r.Status)
	}
	return nil
}
