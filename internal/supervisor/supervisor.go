package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
	"github.com/elskow/berth/internal/runtime"
)

// State is the supervised process state as reported by the supervisor.
type State int

const (
	StateUnknown State = iota
	StateInactive
	StateActive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Supervisor keeps the application process alive on the remote host under a
// stable logical name. Register is idempotent: calling it twice with the
// same inputs leaves one entry, not two.
type Supervisor interface {
	Register(ctx context.Context, app, startCommand, workDir string) error
	Start(ctx context.Context, app string) error
	Stop(ctx context.Context, app string) error
	Status(ctx context.Context, app string) (State, error)
}

// ForProfile selects the supervision strategy for a runtime kind: a
// process-manager (pm2) for node, the host init system (systemd) for
// python/ruby/php, and nil for static/other which have nothing to supervise.
func ForProfile(kind runtime.Kind, exec remote.Executor, user string, logger *zap.Logger) Supervisor {
	switch kind {
	case runtime.KindNode:
		return NewPM2(exec, logger)
	case runtime.KindPython, runtime.KindRuby, runtime.KindPHP:
		return NewSystemd(exec, user, logger)
	default:
		return nil
	}
}
