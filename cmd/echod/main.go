// Command echod runs the echo demonstration server and a driver client
// on the in-memory kernel, wiring the dispatch loop, leases, logging,
// and metrics together end to end.
package main

import (
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wrenos/taskrt/internal/config"
	"github.com/wrenos/taskrt/internal/logging"
	"github.com/wrenos/taskrt/metrics"
	"github.com/wrenos/taskrt/serve"
	"github.com/wrenos/taskrt/simkernel"
	"github.com/wrenos/taskrt/sys"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k := simkernel.New(logger)
	server := k.Spawn("echo-server")
	client := k.Spawn("client")

	var m *metrics.Dispatch
	if cfg.Metrics.Enabled {
		m = metrics.NewDispatch(nil, "echod")
	}

	// Closing the kernel unblocks the serve loop's receive.
	go func() {
		<-ctx.Done()
		k.Close()
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, cfg.Serve.BufferBytes)
		srv := newEchoServer(server, logger.Named("echo"))
		err := serve.RunNotify[echoOp](ctx, server, buf, srv, serve.Options{
			Logger:  logger.Named("serve"),
			Metrics: m,
		})
		logger.Info("serve loop exited", zap.Error(err))
	}()

	// Post a tick notification once a second.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := k.Notify(server.ID(), notifTick); err != nil {
					return
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		drive(ctx, logger.Named("client"), client, server.ID(), cfg.Serve.ReplyBytes)
	}()

	wg.Wait()
	logger.Info("shutdown complete")
}

// drive exercises every echo operation in a loop until ctx is done.
func drive(ctx context.Context, log *zap.Logger, client *simkernel.Port, server sys.TaskID, replyCap int) {
	for i := uint32(1); ctx.Err() == nil; i++ {
		code, reply, err := client.Send(server, uint32(opPing), []byte("ping"), replyCap)
		if err != nil {
			return
		}
		log.Debug("ping", zap.Uint32("code", code), zap.ByteString("reply", reply))

		values := []uint32{i, i * 2, i * 3}
		code, reply, err = client.Send(server, uint32(opSum), nil, replyCap,
			simkernel.Loan{Data: uint32Bytes(values), Attributes: sys.AttrRead})
		if err != nil {
			return
		}
		if code == 0 && len(reply) == 8 {
			log.Info("sum", zap.Uint64("total", binary.LittleEndian.Uint64(reply)))
		}

		scratch := make([]byte, 16)
		code, _, err = client.Send(server, uint32(opFill), []byte{0xA5}, replyCap,
			simkernel.Loan{Data: scratch, Attributes: sys.AttrWrite})
		if err != nil {
			return
		}
		log.Debug("fill", zap.Uint32("code", code), zap.Binary("scratch", scratch[:4]))

		code, _, err = client.Send(server, uint32(opScale), factorBytes(2), replyCap,
			simkernel.Loan{Data: uint32Bytes(values), Attributes: sys.AttrRead | sys.AttrWrite})
		if err != nil {
			return
		}
		log.Debug("scale", zap.Uint32("code", code), zap.Uint32s("values", values))

		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func factorBytes(f uint32) []byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], f)
	return out[:]
}

// uint32Bytes views a []uint32 as the raw bytes a lender would loan.
// The view aliases values, so writes through a lease land in the
// original elements.
func uint32Bytes(values []uint32) []byte {
	if len(values) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*4)
}
