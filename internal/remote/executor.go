package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/elskow/berth/internal/config"
)

// Result is the outcome of one remote command: the exit code and the
// combined stdout/stderr output.
type Result struct {
	ExitCode int
	Output   string
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// Executor runs commands on the remote host. It is the single channel
// through which the pipeline touches remote state, which keeps every stage
// testable against a scripted implementation.
//
// Run returns an error only for transport-level failures (dial, auth,
// session); a command that executed and exited non-zero comes back as a
// Result with that exit code and a nil error.
type Executor interface {
	Run(ctx context.Context, command string) (Result, error)
	RunInput(ctx context.Context, command string, stdin io.Reader) (Result, error)
	Host() string
}

// SSHExecutor executes commands over SSH. Every call dials a fresh
// connection and tears it down afterwards: there is no cached session, so
// each operation is an independent authenticated round trip.
type SSHExecutor struct {
	cfg    config.RemoteConfig
	logger *zap.Logger
}

func NewSSHExecutor(cfg config.RemoteConfig, logger *zap.Logger) *SSHExecutor {
	return &SSHExecutor{cfg: cfg, logger: logger}
}

func (e *SSHExecutor) Host() string { return e.cfg.Host }

func (e *SSHExecutor) Run(ctx context.Context, command string) (Result, error) {
	return e.RunInput(ctx, command, nil)
}

func (e *SSHExecutor) RunInput(ctx context.Context, command string, stdin io.Reader) (Result, error) {
	client, err := e.dial(ctx)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = stdin
	}

	e.logger.Debug("remote command", zap.String("host", e.cfg.Host), zap.String("command", command))

	out, err := session.CombinedOutput(command)
	output := strings.TrimRight(string(out), "\n")
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitStatus(), Output: output}, nil
		}
		return Result{ExitCode: -1, Output: output}, fmt.Errorf("remote command failed: %w", err)
	}
	return Result{ExitCode: 0, Output: output}, nil
}

func (e *SSHExecutor) dial(ctx context.Context) (*ssh.Client, error) {
	clientConfig, err := ClientConfig(e.cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(e.cfg.Host, fmt.Sprintf("%d", e.cfg.Port))
	d := net.Dialer{Timeout: e.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Upload streams content into a remote file, creating parent directories.
// Built on RunInput so scripted executors see it as a plain command.
func Upload(ctx context.Context, exec Executor, content io.Reader, remotePath string, mode os.FileMode) error {
	dir := path.Dir(remotePath)
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %o %s",
		Quote(dir), Quote(remotePath), mode.Perm(), Quote(remotePath))

	res, err := exec.RunInput(ctx, cmd, content)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("upload to %s failed (exit %d): %s", remotePath, res.ExitCode, res.Output)
	}
	return nil
}

// Quote wraps s in single quotes for safe interpolation into a remote shell
// command line.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
