package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
	"github.com/elskow/berth/internal/runtime"
)

func TestSystemd_RenderUnit(t *testing.T) {
	sd := NewSystemd(remote.NewMockExecutor(), "deploy", zap.NewNop())

	unit, err := sd.RenderUnit("app", "python3 app.py", "/var/www/app")
	require.NoError(t, err)

	assert.Contains(t, unit, "Description=app (managed by berth)")
	assert.Contains(t, unit, "User=deploy")
	assert.Contains(t, unit, "WorkingDirectory=/var/www/app")
	assert.Contains(t, unit, "ExecStart=/bin/bash -lc 'python3 app.py'")
	assert.Contains(t, unit, "Restart=always")
	assert.Contains(t, unit, "RestartSec=5")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
}

func TestSystemd_RegisterUploadsAndEnablesUnit(t *testing.T) {
	mock := remote.NewMockExecutor()
	sd := NewSystemd(mock, "deploy", zap.NewNop())

	require.NoError(t, sd.Register(context.Background(), "app", "python3 app.py", "/var/www/app"))

	// unit staged through /tmp, then installed and enabled
	var staged bool
	for _, call := range mock.Calls() {
		if call.Stdin != "" {
			assert.Contains(t, call.Command, "/tmp/app.service")
			assert.Contains(t, call.Stdin, "ExecStart=/bin/bash -lc 'python3 app.py'")
			staged = true
		}
	}
	assert.True(t, staged, "unit content should be uploaded")
	assert.True(t, mock.CalledWith("sudo mv /tmp/app.service /etc/systemd/system/app.service"))
	assert.True(t, mock.CalledWith("systemctl daemon-reload"))
	assert.True(t, mock.CalledWith("systemctl enable app"))
}

func TestSystemd_RegisterTwiceOverwritesSameUnit(t *testing.T) {
	mock := remote.NewMockExecutor()
	sd := NewSystemd(mock, "deploy", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sd.Register(ctx, "app", "python3 app.py", "/var/www/app"))
	require.NoError(t, sd.Register(ctx, "app", "python3 app.py", "/var/www/app"))

	// the unit path is deterministic, so the second register overwrites
	assert.Equal(t, 2, mock.CountCalls("/etc/systemd/system/app.service"))
}

func TestSystemd_RegisterFailureIsFatal(t *testing.T) {
	mock := remote.NewMockExecutor()
	mock.Fail("daemon-reload", "Failed to reload daemon")
	sd := NewSystemd(mock, "deploy", zap.NewNop())

	assert.Error(t, sd.Register(context.Background(), "app", "python3 app.py", "/var/www/app"))
}

func TestSystemd_StopSwallowsAbsentUnit(t *testing.T) {
	mock := remote.NewMockExecutor()
	mock.Fail("systemctl stop", "Failed to stop app.service: Unit app.service not loaded.")
	sd := NewSystemd(mock, "deploy", zap.NewNop())

	assert.NoError(t, sd.Stop(context.Background(), "app"))
}

func TestSystemd_Status(t *testing.T) {
	mock := remote.NewMockExecutor()
	mock.Respond("is-active", "active")
	sd := NewSystemd(mock, "deploy", zap.NewNop())

	state, err := sd.Status(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)

	mock = remote.NewMockExecutor()
	mock.Rules = []remote.MockRule{{Match: "is-active", Result: remote.Result{ExitCode: 3, Output: "inactive"}}}
	sd = NewSystemd(mock, "deploy", zap.NewNop())

	state, err = sd.Status(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, StateInactive, state)
}

func TestForProfile(t *testing.T) {
	exec := remote.NewMockExecutor()
	log := zap.NewNop()

	assert.IsType(t, &PM2{}, ForProfile(runtime.KindNode, exec, "deploy", log))
	assert.IsType(t, &Systemd{}, ForProfile(runtime.KindPython, exec, "deploy", log))
	assert.IsType(t, &Systemd{}, ForProfile(runtime.KindRuby, exec, "deploy", log))
	assert.IsType(t, &Systemd{}, ForProfile(runtime.KindPHP, exec, "deploy", log))
	assert.Nil(t, ForProfile(runtime.KindStatic, exec, "deploy", log))
	assert.Nil(t, ForProfile(runtime.KindOther, exec, "deploy", log))
}
