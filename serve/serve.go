// Package serve runs a server's dispatch loop until shutdown, with
// structured logging and metrics around each exchange. The one-shot
// semantics of package dispatch are unchanged: each iteration receives,
// validates, handles, and fully disposes of exactly one message.
package serve

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wrenos/taskrt/dispatch"
	"github.com/wrenos/taskrt/metrics"
	"github.com/wrenos/taskrt/sys"
)

// Options configures a serve loop. The zero value is usable: a nop
// logger and no metrics.
type Options struct {
	// Logger receives one debug line per exchange and a warn line per
	// rejection. Nil means no logging.
	Logger *zap.Logger

	// Metrics, when non-nil, observes every outcome.
	Metrics *metrics.Dispatch
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Run dispatches messages for srv until ctx is done or the port is
// closed. It returns ctx.Err after cancellation and nil after a clean
// port shutdown.
func Run[O dispatch.Op[O]](ctx context.Context, k sys.IPC, buf []byte, srv dispatch.Server[O], opts Options) error {
	return loop(ctx, opts, func() dispatch.Outcome {
		return dispatch.Dispatch(k, buf, srv)
	})
}

// RunNotify is Run for servers that accept kernel notifications.
func RunNotify[O dispatch.Op[O]](ctx context.Context, k sys.IPC, buf []byte, srv dispatch.NotifyServer[O], opts Options) error {
	return loop(ctx, opts, func() dispatch.Outcome {
		return dispatch.DispatchNotify(k, buf, srv)
	})
}

func loop(ctx context.Context, opts Options, step func() dispatch.Outcome) error {
	log := opts.logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		outcome := step()
		elapsed := time.Since(start)

		if opts.Metrics != nil {
			opts.Metrics.Observe(outcome.String(), elapsed)
		}

		switch outcome {
		case dispatch.OutcomePortClosed:
			log.Info("port closed, stopping serve loop")
			return nil
		case dispatch.OutcomeRecvFailed:
			log.Warn("closed receive failed, sender lost")
		case dispatch.OutcomeUnknownOp, dispatch.OutcomeTruncated:
			log.Warn("rejected exchange", zap.Stringer("outcome", outcome))
		default:
			log.Debug("exchange disposed",
				zap.Stringer("outcome", outcome),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}
