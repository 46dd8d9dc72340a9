package workeragent

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
)

// logWriter is called for every chunk of stdout/stderr a running execution
// produces, in order, before the process exits.
type logWriter func(stream protocol.LogStream, data []byte)

// Executor runs an ExecutionDefinition to completion, reporting output as it
// is produced. Implementations must honor ctx cancellation by terminating
// the underlying process.
type Executor interface {
	Execute(ctx context.Context, def protocol.ExecutionDefinition, env map[string]string, onLog logWriter) (exitCode int, err error)
}

// chunkSize bounds how much output LocalExecutor buffers before handing a
// chunk to onLog; keeps log streaming responsive on chatty commands.
const chunkSize = 32 * 1024

// LocalExecutor runs shell commands and scripts as a child process of the
// worker agent via /bin/sh -c, the same approach a CI runner's "local"
// executor uses when no container runtime is involved.
type LocalExecutor struct{}

// NewLocalExecutor builds a LocalExecutor.
func NewLocalExecutor() *LocalExecutor { return &LocalExecutor{} }

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, def protocol.ExecutionDefinition, env map[string]string, onLog logWriter) (int, error) {
	script := def.Script
	if script == "" {
		script = strings.Join(def.Shell, "\n")
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Env = append(os.Environ(), envSlice(env)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, apperr.Wrap(apperr.KindInternal, "workeragent.Execute", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, apperr.Wrap(apperr.KindInternal, "workeragent.Execute", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, apperr.Wrap(apperr.KindInternal, "workeragent.Execute", err)
	}

	done := make(chan struct{}, 2)
	go func() { streamPipe(stdout, protocol.StreamStdout, onLog); done <- struct{}{} }()
	go func() { streamPipe(stderr, protocol.StreamStderr, onLog); done <- struct{}{} }()
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, apperr.Wrap(apperr.KindInternal, "workeragent.Execute", err)
	}
	return 0, nil
}

func streamPipe(r io.Reader, stream protocol.LogStream, onLog logWriter) {
	buf := bufio.NewReaderSize(r, chunkSize)
	chunk := make([]byte, chunkSize)
	for {
		n, err := buf.Read(chunk)
		if n > 0 {
			data := make([]byte, n)
			copy(data, chunk[:n])
			onLog(stream, data)
		}
		if err != nil {
			return
		}
	}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
