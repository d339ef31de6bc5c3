/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: executor.go
Description: Trial executor for the Choronzon fuzzer. Writes the serialized child to
a stable input path, creates the coverage FIFO before the target is allowed to run,
spawns the target under the tracer and ingests the coverage stream while the target
executes. Applies the per-trial wall-clock timeout: the tracer is signalled with
SIGUSR2 and given a grace period to flush its sentinel before the target is killed.
*/

package execution

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kleascm/choronzon/pkg/interfaces"
	"github.com/kleascm/choronzon/pkg/tracer"
)

// TracePipeEnv is the environment variable through which the tracer learns
// the FIFO path.
const TracePipeEnv = "CHORONZON_TRACE_PIPE"

// TracerExecutor implements the Executor interface on top of a FIFO-based
// coverage tracer.
type TracerExecutor struct {
	config    *interfaces.Config
	inputPath string
	pipePath  string
}

// NewTracerExecutor creates a new tracer executor instance.
func NewTracerExecutor() *TracerExecutor {
	return &TracerExecutor{}
}

// Initialize sets up the executor with the given configuration.
func (e *TracerExecutor) Initialize(config *interfaces.Config) error {
	if config == nil {
		return fmt.Errorf("%w: executor configuration is nil", interfaces.ErrConfig)
	}
	e.config = config
	e.inputPath = filepath.Join(config.RunDir, "cur_input")
	e.pipePath = filepath.Join(config.RunDir, "trace.pipe")
	if err := os.MkdirAll(config.RunDir, 0o755); err != nil {
		return fmt.Errorf("%w: create run directory: %v", interfaces.ErrIO, err)
	}
	return nil
}

// buildArgs substitutes the input path for "@@" in the target arguments, or
// appends it when no placeholder is present.
func (e *TracerExecutor) buildArgs() []string {
	args := make([]string, 0, len(e.config.TargetArgs)+1)
	substituted := false
	for _, a := range e.config.TargetArgs {
		if strings.Contains(a, "@@") {
			a = strings.ReplaceAll(a, "@@", e.inputPath)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, e.inputPath)
	}
	return args
}

// Execute runs one trial: input file, FIFO, target, coverage ingest.
func (e *TracerExecutor) Execute(data []byte) (*interfaces.TrialResult, error) {
	if err := os.WriteFile(e.inputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write input: %v", interfaces.ErrIO, err)
	}

	pipe, err := tracer.CreatePipe(e.pipePath)
	if err != nil {
		return nil, err
	}
	defer pipe.Close()

	cmd := exec.Command(e.config.Target, e.buildArgs()...)
	cmd.Env = append(os.Environ(), e.config.TargetEnv...)
	cmd.Env = append(cmd.Env, TracePipeEnv+"="+e.pipePath)

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrTargetSpawn, err)
	}

	traceCh := make(chan *tracer.Trace, 1)
	go func() {
		t, _ := tracer.Read(pipe.Reader())
		traceCh <- t
	}()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(e.config.TrialTimeout)
	defer timer.Stop()

	var trace *tracer.Trace
	timedOut := false

	for trace == nil {
		select {
		case trace = <-traceCh:
			// Sentinel observed or stream ended.
		case <-waitCh:
			waitCh = nil
			// Target exited; release the keepalive so the parser
			// sees end-of-file once the tracer's write end closes.
			pipe.Release()
		case <-timer.C:
			timedOut = true
			_ = cmd.Process.Signal(unix.SIGUSR2)
			select {
			case trace = <-traceCh:
			case <-time.After(e.config.GracePeriod):
				_ = cmd.Process.Kill()
				pipe.Release()
				trace = <-traceCh
			}
		}
	}

	if waitCh != nil {
		// The sentinel arrived before process exit; reap the target so
		// no zombie survives the trial.
		go func(ch chan error, c *exec.Cmd) {
			select {
			case <-ch:
			case <-time.After(e.config.GracePeriod):
				_ = c.Process.Kill()
				<-ch
			}
		}(waitCh, cmd)
	}

	result := &interfaces.TrialResult{
		Coverage:    trace.Coverage,
		Termination: trace.Termination,
		FaultSite:   trace.LastHit,
		Duration:    time.Since(startTime),
	}

	// A truncated stream during an engine-raised timeout is a timeout,
	// not a tracer failure.
	if timedOut && result.Termination.Reason != interfaces.TermFatalSignal {
		result.Termination = interfaces.Termination{Reason: interfaces.TermTimeout}
	}

	return result, nil
}

// Cleanup removes the per-trial artifacts.
func (e *TracerExecutor) Cleanup() error {
	_ = os.Remove(e.inputPath)
	_ = os.Remove(e.pipePath)
	return nil
}
