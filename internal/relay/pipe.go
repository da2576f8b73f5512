package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrClientGone means the caller stopped accepting bytes mid-stream.
var ErrClientGone = errors.New("client stopped reading")

const pipeBufferSize = 32 << 10

// Pipe copies src to dst as bytes arrive, calling flush after every write,
// until src ends, ctx is done or a write fails. src is always closed on
// return, and is also closed as soon as ctx is done so a blocked read
// returns instead of draining an abandoned stream.
func Pipe(ctx context.Context, dst io.Writer, flush func(), src io.ReadCloser) (int64, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = src.Close()
	})
	defer func() {
		stop()
		_ = src.Close()
	}()

	buf := make([]byte, pipeBufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, fmt.Errorf("%w: %w", ErrClientGone, werr)
			}
			if w != n {
				return written, fmt.Errorf("%w: %w", ErrClientGone, io.ErrShortWrite)
			}
			if flush != nil {
				flush()
			}
		}

		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			return written, fmt.Errorf("%w: %w", ErrTransport, rerr)
		}
	}
}
