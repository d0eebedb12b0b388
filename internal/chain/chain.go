package chain

import (
	"fmt"

	"releasekit/internal/job"
	"releasekit/internal/logging"
	"releasekit/internal/signal"
)

// Pipe forwards every output line of up to down.PipeInput as it is emitted,
// and calls down.PipeClosed once up finishes. A rejected line is reported as
// an error on down; a failing PipeClosed is fatal for down and finishes it.
func Pipe(up, down *job.Job) error {
	if up == nil || down == nil {
		return fmt.Errorf("chain: pipe needs two jobs")
	}
	if err := up.OnOutput(func(value string) {
		if err := down.PipeInput(value); err != nil {
			_ = down.Error(fmt.Errorf("piped input from %s: %w", up.Name(), err))
		}
	}); err != nil {
		return err
	}
	if err := up.OnFinished(func(*job.Job) {
		if err := down.PipeClosed(); err != nil {
			down.Exception(fmt.Errorf("close pipe from %s: %w", up.Name(), err))
			down.Finish()
		}
	}); err != nil {
		return err
	}
	down.Logger().Debug("job piped",
		logging.String("upstream", up.Name()),
		logging.String(logging.FieldEventType, "job_piped"))
	return nil
}

// Forward registers fn on any named signal of up.
func Forward(up *job.Job, name signal.Name, fn signal.Callback) error {
	if up == nil {
		return fmt.Errorf("chain: forward from nil job")
	}
	return up.On(name, fn)
}
