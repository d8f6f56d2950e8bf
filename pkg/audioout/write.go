// ABOUTME: Blocking write helper for pull-mode outputs
// ABOUTME: Feeds a byte slice into the device writer as buffer space frees up
package audioout

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio/output"
)

const minWriteWait = time.Millisecond

// WriteAll writes p into w, the writer returned by o.StartWriter.
// While the buffer is full it waits one period at a time. It returns
// output.ErrStreamStopped if the stream stops and ctx.Err() on cancellation.
func WriteAll(ctx context.Context, o *Output, w io.Writer, p []byte) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := w.Write(p)
		p = p[n:]
		switch {
		case err == nil:
			continue
		case errors.Is(err, output.ErrBufferFull):
		default:
			return err
		}

		if n > 0 {
			continue
		}

		wait := o.Format().DurationForBytes(int64(o.PeriodSize()))
		if wait < minWriteWait {
			wait = minWriteWait
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
