package torrent

import (
	"context"
	"time"

	"releasekit/internal/daemonproc"
)

// TargetName is the daemonproc target that creates a torrent.
const TargetName = "torrent.create"

// CreateRequest is the argument of the torrent.create target.
type CreateRequest struct {
	Options Options `json:"options"`
	Output  string  `json:"output"`
}

func init() {
	daemonproc.Register(TargetName, runCreate)
}

// runCreate sends the plan as init, the hashed percentage as info whenever it
// advances, and the torrent path as result.
func runCreate(ctx context.Context, in *daemonproc.Input, out *daemonproc.Output) error {
	var req CreateRequest
	if err := in.Args(&req); err != nil {
		return err
	}
	plan, err := Scan(req.Options)
	if err != nil {
		return err
	}
	if err := out.Init(plan); err != nil {
		return err
	}

	lastPercent := -1
	pieces, err := Hash(ctx, plan, func(done, total int64) {
		percent := int(done * 100 / total)
		if percent != lastPercent {
			lastPercent = percent
			_ = out.Info(percent)
		}
	})
	if err != nil {
		return err
	}
	data, err := Build(plan, pieces, req.Options, time.Now())
	if err != nil {
		return err
	}
	if err := writeFileAtomic(req.Output, data); err != nil {
		return err
	}
	return out.Result(req.Output)
}
