package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const streamChunkSize = 4096

// SSHConfig describes how to reach one host.
type SSHConfig struct {
	Address        string
	Port           int
	User           string
	KeyFile        string
	KnownHostsFile string
	Timeout        time.Duration
}

// SSHRunner runs commands over a single, lazily dialed SSH connection.
type SSHRunner struct {
	cfg    SSHConfig
	client *ssh.ClientConfig
	log    *log.Entry

	mu   sync.Mutex
	conn *ssh.Client
}

var _ Runner = (*SSHRunner)(nil)

// NewSSHRunner prepares a runner. No connection is made until the first command.
func NewSSHRunner(cfg SSHConfig, logger *log.Entry) (*SSHRunner, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key %s: %w", cfg.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh key %s: %w", cfg.KeyFile, err)
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKeys, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
	}

	return &SSHRunner{
		cfg: cfg,
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         cfg.Timeout,
		},
		log: logger.WithField("address", cfg.Address),
	}, nil
}

func (r *SSHRunner) dial() (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	addr := net.JoinHostPort(r.cfg.Address, strconv.Itoa(r.cfg.Port))
	conn, err := ssh.Dial("tcp", addr, r.client)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrNotConnected, addr, err)
	}
	r.conn = conn
	return conn, nil
}

// Reconnect closes the current connection. The next command dials again.
func (r *SSHRunner) Reconnect() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	r.log.Debug("dropping ssh connection")
	return conn.Close()
}

// Close releases the connection.
func (r *SSHRunner) Close() error { return r.Reconnect() }

func (r *SSHRunner) session(ctx context.Context) (*ssh.Session, func(), error) {
	conn, err := r.dial()
	if err != nil {
		return nil, nil, err
	}
	sess, err := conn.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: new session: %v", ErrNotConnected, err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Signal(ssh.SIGKILL)
			_ = sess.Close()
		case <-done:
		}
	}()
	return sess, func() {
		close(done)
		_ = sess.Close()
	}, nil
}

// Run executes cmd and returns its combined output.
func (r *SSHRunner) Run(ctx context.Context, cmd Command) Result {
	sess, release, err := r.session(ctx)
	if err != nil {
		return Result{ExitCode: ExitConnectionLost, Err: err}
	}
	defer release()

	out, err := sess.CombinedOutput(cmd.Line)
	if err != nil {
		return Result{Output: string(out), ExitCode: exitCode(err), Err: err}
	}
	return Result{Output: string(out)}
}

// Stream executes cmd and forwards stdout chunks to fn.
func (r *SSHRunner) Stream(ctx context.Context, cmd Command, fn func(Event)) {
	sess, release, err := r.session(ctx)
	if err != nil {
		fn(Failure{ExitCode: ExitConnectionLost, Err: err})
		return
	}
	defer release()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		fn(Failure{ExitCode: ExitConnectionLost, Err: fmt.Errorf("stdout pipe: %w", err)})
		return
	}
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	if err := sess.Start(cmd.Line); err != nil {
		fn(Failure{ExitCode: exitCode(err), Err: fmt.Errorf("starting %s: %w", cmd.Name, err)})
		return
	}

	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			fn(Chunk{Text: string(buf[:n])})
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				r.log.WithError(readErr).Debugf("reading %s output", cmd.Name)
			}
			break
		}
	}

	if err := sess.Wait(); err != nil {
		fn(Failure{Output: stderr.String(), ExitCode: exitCode(err), Err: err})
		return
	}
	fn(Success{})
}

// exitCode maps ssh errors onto the exit codes status loops know about.
func exitCode(err error) int {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return ExitNullExit
	}
	return ExitConnectionLost
}
