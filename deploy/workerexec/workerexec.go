// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package workerexec is the only abstraction in this module allowed to
// touch a remote worker host: running a shell command and, for `exec`/`cp`,
// an interactive session, all over an authenticated channel.
package workerexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/satctl/satctl/schema"

	"golang.org/x/crypto/ssh"
)

// Command is one worker-executor invocation, typed instead of an ad hoc
// shell string so callers can't forget to quote an argument.
type Command struct {
	// Tool is the program to run, e.g. "docker".
	Tool string

	// Args are passed to Tool as separate words: each is shell-quoted on
	// its own before the command line is joined.
	Args []string

	// Env is exported into the remote command's environment.
	Env map[string]string

	// Stdin is optionally streamed to the remote command.
	Stdin []byte

	// Deadline bounds how long the command may run. Zero means the
	// executor's default (30s).
	Deadline time.Duration
}

// DefaultDeadline is used when a Command doesn't set one.
const DefaultDeadline = 30 * time.Second

// line renders cmd into a single shell command line -- env assignments,
// then the tool and its arguments, each individually quoted.
func (cmd Command) line() string {
	var b bytes.Buffer
	for k, v := range cmd.Env {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(v))
	}
	b.WriteString(shellQuote(cmd.Tool))
	for _, a := range cmd.Args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

// shellQuote wraps s in single quotes, escaping any single quote it
// contains, so it survives being passed to `sh -c`.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result is what a worker executor returns for one Command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor is the worker-executor contract: run a command on a specific
// worker and get back (stdout, stderr, exit-code). Callers supply the full
// WorkerSpec every time since a deployer fans commands out to many workers
// concurrently and shouldn't need to hold one connection per worker open.
type Executor interface {
	Run(ctx context.Context, worker schema.WorkerSpec, cmd Command) (*Result, error)
}

// WorkerExecError is returned by Run when the remote command completed but
// returned a non-zero exit code; it's surfaced per node and never aborts
// the rest of a fan-out.
type WorkerExecError struct {
	ExitCode int
	Stderr   string
}

func (e *WorkerExecError) Error() string {
	return fmt.Sprintf("worker command failed, exit code %d: %s", e.ExitCode, e.Stderr)
}

// SSHExecutor runs commands over golang.org/x/crypto/ssh, dialing a fresh
// client per call. Workers are emulation hosts a control command talks to
// a handful of times per run, not a hot path worth pooling connections
// for.
type SSHExecutor struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	// DialTimeout bounds the SSH handshake. Defaults to 10s if zero.
	DialTimeout time.Duration

	// HostKeyCallback validates the worker's host key. Defaults to
	// ssh.InsecureIgnoreHostKey if nil -- set this explicitly in
	// production, the way store/sshtunnel does for the store's jump
	// host.
	HostKeyCallback ssh.HostKeyCallback
}

func (obj *SSHExecutor) logf(format string, v ...interface{}) {
	if obj.Logf == nil {
		return
	}
	obj.Logf(format, v...)
}

// Run dials worker.IP over SSH as worker.SSHUser using worker.SSHKey, and
// runs cmd in a single remote session.
func (obj *SSHExecutor) Run(ctx context.Context, worker schema.WorkerSpec, cmd Command) (*Result, error) {
	signer, err := ssh.ParsePrivateKey([]byte(worker.SSHKey))
	if err != nil {
		return nil, fmt.Errorf("could not parse ssh key for worker: %w", err)
	}

	hostKeyCallback := obj.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	dialTimeout := obj.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	config := &ssh.ClientConfig{
		User:            worker.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(worker.IP, "22")
	if obj.Debug {
		obj.logf("dialing worker at %s", addr)
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not reach worker %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh handshake with worker %s failed: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("could not open ssh session to worker %s: %w", addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if len(cmd.Stdin) > 0 {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	deadline := cmd.Deadline
	if deadline == 0 {
		deadline = DefaultDeadline
	}
	timer := time.AfterFunc(deadline, func() {
		session.Signal(ssh.SIGKILL)
		session.Close()
	})
	defer timer.Stop()

	runErr := session.Run(cmd.line())
	result := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		result.ExitCode = exitErr.ExitStatus()
		return result, &WorkerExecError{ExitCode: result.ExitCode, Stderr: stderr.String()}
	}
	return nil, fmt.Errorf("ssh command on worker %s failed: %w", addr, runErr)
}

// Interactive opens an interactive PTY session for `satctl exec`, wiring
// stdin/stdout/stderr through to in/out/errOut until the remote command
// exits or ctx is canceled.
func (obj *SSHExecutor) Interactive(ctx context.Context, worker schema.WorkerSpec, cmdLine string, in io.Reader, out, errOut io.Writer) error {
	signer, err := ssh.ParsePrivateKey([]byte(worker.SSHKey))
	if err != nil {
		return fmt.Errorf("could not parse ssh key for worker: %w", err)
	}
	hostKeyCallback := obj.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            worker.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}
	addr := net.JoinHostPort(worker.IP, "22")
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("could not reach worker %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("could not open ssh session to worker %s: %w", addr, err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 80, 40, modes); err != nil {
		return fmt.Errorf("could not request pty: %w", err)
	}

	session.Stdin = in
	session.Stdout = out
	session.Stderr = errOut

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdLine) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case err := <-done:
		return err
	}
}
