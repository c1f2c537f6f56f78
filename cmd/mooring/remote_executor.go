// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package main provides the RemoteExecutor, the component that drives a
reconciliation on the deployment target over SSH.

# Fail-Fast Contract

The target address is operator-maintained configuration, and the
expected failure mode is that it went stale: the VM was recreated and
its address changed. Execute therefore probes plain TCP reachability
before opening any session, so a stale target fails with
ErrHostUnreachable and nothing was executed anywhere.

# Credential Handling

The private key is borrowed from the SecretsManager for the scope of a
single Execute call and the backing buffers are wiped when it returns.
The target host is registered with the log sanitizer, so neither the
address nor any key material can reach log output or error text.
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// =============================================================================
// Error Sentinel Values
// =============================================================================

var (
	// ErrHostUnreachable is returned when the deployment target cannot
	// be reached at all: stale address, closed port, network down. No
	// remote step has run when this is returned.
	ErrHostUnreachable = errors.New("deployment target unreachable")

	// ErrAuthFailed is returned when the SSH handshake is refused:
	// missing or unparseable private key, rejected public key, or a
	// host key that does not match the known hosts database.
	ErrAuthFailed = errors.New("ssh authentication failed")

	// ErrCommandFailed is returned when the remote command sequence ran
	// and exited non-zero. The wrapped CommandError preserves the exit
	// code and a stderr tail.
	ErrCommandFailed = errors.New("remote command failed")
)

// stderrTailLines bounds how much remote stderr is kept for error
// reporting. The full stream still goes through the logger.
const stderrTailLines = 40

// remoteBinary is the name the CLI is installed as on deployment
// targets.
const remoteBinary = "mooring"

// =============================================================================
// Execution Outcome
// =============================================================================

// ExecutionOutcome reports what a remote command sequence did.
type ExecutionOutcome struct {
	// Command is the joined command line that was executed remotely.
	Command string

	// ExitCode is the remote exit status: 0 on success, the remote
	// code on failure, -1 when the session died without one.
	ExitCode int

	// Duration covers dial through session close.
	Duration time.Duration
}

// =============================================================================
// Interface Definition
// =============================================================================

// RemoteExecutor runs command sequences on the deployment target.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Each Execute call
// opens and closes its own session.
type RemoteExecutor interface {
	// Probe verifies the target answers on its SSH port without
	// opening a session. Returns wrapped ErrHostUnreachable otherwise.
	Probe(ctx context.Context, target config.DeploymentTarget) error

	// Execute probes the target, opens one authenticated session, and
	// runs the command sequence joined with " && " so a failing step
	// stops the remote run.
	//
	// # Outputs
	//
	//   - *ExecutionOutcome: non-nil whenever a session ran the
	//     sequence, including non-zero exits; nil when no session was
	//     established
	//   - error: wrapped ErrHostUnreachable, ErrAuthFailed, or
	//     ErrCommandFailed per failure phase
	Execute(ctx context.Context, target config.DeploymentTarget, commands []string) (*ExecutionOutcome, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// remoteConn is one established SSH connection. The default
// implementation wraps *ssh.Client; tests substitute a script.
type remoteConn interface {
	// RunCommand executes one command line in a fresh session,
	// streaming output to stdout and stderr as it arrives.
	RunCommand(ctx context.Context, command string, stdout, stderr io.Writer) error

	Close() error
}

// DefaultRemoteExecutor implements RemoteExecutor over x/crypto/ssh.
type DefaultRemoteExecutor struct {
	secrets   SecretsManager
	sanitizer *LogSanitizer
	remote    config.RemoteConfig
	logger    *logging.Logger

	// probe and dial are the network seams; tests replace them to run
	// without a live host.
	probe func(ctx context.Context, addr string, timeout time.Duration) error
	dial  func(ctx context.Context, target config.DeploymentTarget, remote config.RemoteConfig, key, passphrase []byte) (remoteConn, error)
}

// NewDefaultRemoteExecutor creates an executor for the configured SSH
// defaults.
func NewDefaultRemoteExecutor(secrets SecretsManager, sanitizer *LogSanitizer, remote config.RemoteConfig, logger *logging.Logger) (*DefaultRemoteExecutor, error) {
	if secrets == nil {
		return nil, fmt.Errorf("%w: SecretsManager", ErrNilDependency)
	}
	if sanitizer == nil {
		return nil, fmt.Errorf("%w: LogSanitizer", ErrNilDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	return &DefaultRemoteExecutor{
		secrets:   secrets,
		sanitizer: sanitizer,
		remote:    remote,
		logger:    logger,
		probe:     tcpProbe,
		dial:      sshDial,
	}, nil
}

// Probe implements RemoteExecutor.
func (e *DefaultRemoteExecutor) Probe(ctx context.Context, target config.DeploymentTarget) error {
	if target.Host == "" {
		return fmt.Errorf("%w: deployment target has no host; set %s", ErrHostUnreachable, SecretDeployHost)
	}
	e.sanitizer.RegisterSecret(target.Host)

	timeout := util.EnforceMinTimeout(e.remote.ConnectTimeout(), util.MinConnectTimeout)
	if err := e.probe(ctx, target.Addr(), timeout); err != nil {
		return fmt.Errorf("%w: %s", ErrHostUnreachable, e.sanitizer.SanitizeError(err))
	}
	return nil
}

// Execute implements RemoteExecutor.
func (e *DefaultRemoteExecutor) Execute(ctx context.Context, target config.DeploymentTarget, commands []string) (outcome *ExecutionOutcome, err error) {
	defer func() {
		recoverPanic(recover(), &err)
	}()

	if len(commands) == 0 {
		return nil, errors.New("no commands to execute")
	}
	if err := e.Probe(ctx, target); err != nil {
		return nil, err
	}

	command := strings.Join(commands, " && ")
	started := time.Now()
	exitCode := 0
	ran := false

	keyErr := e.secrets.WithSSHKey(func(key, passphrase []byte) error {
		conn, dialErr := e.dial(ctx, target, e.remote, key, passphrase)
		if dialErr != nil {
			return dialErr
		}
		defer conn.Close()

		e.logger.Info("remote session established", "user", target.User)

		stdout := newLineWriter(func(line string) {
			e.logger.Info("remote stdout", "line", e.sanitizer.Sanitize(line))
		})
		tail := util.NewRingBuffer[string](stderrTailLines)
		stderr := newLineWriter(func(line string) {
			line = e.sanitizer.Sanitize(line)
			tail.Push(line)
			e.logger.Warn("remote stderr", "line", line)
		})

		ran = true
		runErr := conn.RunCommand(ctx, command, stdout, stderr)
		stdout.Flush()
		stderr.Flush()
		if runErr == nil {
			return nil
		}

		exitCode = remoteExitCode(runErr)
		stderrTail := strings.Join(tail.Drain(), "\n")
		if n := tail.DroppedCount(); n > 0 {
			stderrTail = fmt.Sprintf("(%d earlier stderr lines dropped)\n%s", n, stderrTail)
		}
		return util.NewCommandError(command, exitCode, stderrTail, ErrCommandFailed)
	})

	if keyErr != nil {
		// A missing or unusable key never reaches the handshake; it is
		// still an authentication failure as far as the operator is
		// concerned.
		if errors.Is(keyErr, ErrSecretNotFound) || errors.Is(keyErr, ErrSecretsDestroyed) {
			keyErr = fmt.Errorf("%w: %v", ErrAuthFailed, keyErr)
		}
		if !ran {
			return nil, keyErr
		}
		return &ExecutionOutcome{Command: command, ExitCode: exitCode, Duration: time.Since(started)}, keyErr
	}

	outcome = &ExecutionOutcome{Command: command, ExitCode: 0, Duration: time.Since(started)}
	e.logger.Info("remote execution succeeded", "duration", outcome.Duration.String())
	return outcome, nil
}

// =============================================================================
// SSH Transport
// =============================================================================

// tcpProbe is the default reachability check: one TCP dial, nothing
// sent.
func tcpProbe(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// sshDial is the default dial seam. The two network phases classify
// themselves: a transport failure is ErrHostUnreachable, anything the
// handshake rejects is ErrAuthFailed. A host key mismatch counts as a
// handshake rejection.
func sshDial(ctx context.Context, target config.DeploymentTarget, remote config.RemoteConfig, key, passphrase []byte) (remoteConn, error) {
	signer, err := parseSigner(key, passphrase)
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(remote)
	if err != nil {
		return nil, err
	}

	timeout := util.EnforceMinTimeout(remote.ConnectTimeout(), util.MinConnectTimeout)
	clientConfig := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	addr := target.Addr()
	d := net.Dialer{Timeout: timeout}
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostUnreachable, err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return &sshConn{client: ssh.NewClient(conn, chans, reqs)}, nil
}

// parseSigner turns key material into an SSH signer, using the
// passphrase only when one is configured.
func parseSigner(key, passphrase []byte) (ssh.Signer, error) {
	var signer ssh.Signer
	var err error
	if len(passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrAuthFailed, err)
	}
	return signer, nil
}

// hostKeyCallback builds the host key policy: the configured known
// hosts database, or accept-anything when the operator explicitly
// opted out of verification.
func hostKeyCallback(remote config.RemoteConfig) (ssh.HostKeyCallback, error) {
	if remote.InsecureSkipHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := remote.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return callback, nil
}

// sshConn adapts *ssh.Client to remoteConn.
type sshConn struct {
	client *ssh.Client
}

// RunCommand implements remoteConn. Cancelling the context kills the
// remote process and tears the connection down; SSH has no reliable
// cross-server signal delivery, so closing the transport is the
// portable cancel.
func (c *sshConn) RunCommand(ctx context.Context, command string, stdout, stderr io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = c.client.Close()
		<-done
		return ctx.Err()
	}
}

// Close implements remoteConn.
func (c *sshConn) Close() error {
	return c.client.Close()
}

// remoteExitCode extracts the remote exit status from a session error.
// ssh.ExitError carries one; a session torn down without a status (lost
// connection, cancelled context) reports -1.
func remoteExitCode(err error) int {
	var exitErr interface{ ExitStatus() int }
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}

// =============================================================================
// Command Sequence Composition
// =============================================================================

// reconcileCommandSequence composes the remote invocation of the
// orchestrator: change into the stack directory and run the same
// reconcile the operator would run on the VM. The heavy lifting
// happens in the remote binary; this side only sequences and observes.
func reconcileCommandSequence(target config.DeploymentTarget, stackFile string, opts ReconcileOptions) []string {
	args := []string{remoteBinary, "reconcile"}
	if stackFile != "" {
		args = append(args, "--stack", shellQuote(stackFile))
	}
	if opts.PinDigests {
		args = append(args, "--pin-digests")
	}

	dir := target.RemoteDir
	if dir == "" {
		dir = "."
	}
	return []string{
		"cd " + shellQuote(dir),
		strings.Join(args, " "),
	}
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// =============================================================================
// Line Splitting
// =============================================================================

// lineWriter adapts a line callback to io.Writer, buffering partial
// writes until a newline arrives. Flush emits any unterminated rest.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(line string)
}

func newLineWriter(emit func(line string)) *lineWriter {
	return &lineWriter{emit: emit}
}

// Write implements io.Writer. Never returns an error; log delivery
// must not fail the remote command.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: put it back and wait for the rest.
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits a trailing line that never got its newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockRemoteExecutor implements RemoteExecutor for testing.
type MockRemoteExecutor struct {
	// ProbeFunc is called when Probe is invoked.
	ProbeFunc func(ctx context.Context, target config.DeploymentTarget) error

	// ExecuteFunc is called when Execute is invoked.
	ExecuteFunc func(ctx context.Context, target config.DeploymentTarget, commands []string) (*ExecutionOutcome, error)

	// ProbeCalls records the probed hosts.
	ProbeCalls []string

	// ExecuteCalls records each command sequence.
	ExecuteCalls [][]string

	// mu protects call tracking.
	mu sync.Mutex
}

// Probe implements RemoteExecutor.
func (m *MockRemoteExecutor) Probe(ctx context.Context, target config.DeploymentTarget) error {
	m.mu.Lock()
	m.ProbeCalls = append(m.ProbeCalls, target.Host)
	m.mu.Unlock()

	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, target)
	}
	return nil
}

// Execute implements RemoteExecutor.
func (m *MockRemoteExecutor) Execute(ctx context.Context, target config.DeploymentTarget, commands []string) (*ExecutionOutcome, error) {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, commands)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, target, commands)
	}
	return &ExecutionOutcome{Command: strings.Join(commands, " && ")}, nil
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ RemoteExecutor = (*DefaultRemoteExecutor)(nil)
var _ RemoteExecutor = (*MockRemoteExecutor)(nil)
var _ remoteConn = (*sshConn)(nil)
var _ io.Writer = (*lineWriter)(nil)
