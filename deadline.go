package framing

import (
	"context"
	"time"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// aLongTimeAgo is a deadline that has already expired. Setting it unblocks a
// pending Read or Write.
var aLongTimeAgo = time.Unix(1, 0)

// bindDeadline maps ctx onto a connection deadline for the duration of one
// operation. set is nil when the connection has no deadlines; ctx is then only
// checked between reads or writes. The returned func must be called when the
// operation ends.
//
// A deadline set on the connection by the caller survives unless ctx carries
// a deadline or is canceled during the operation; in those cases it is
// replaced and cleared on release.
func bindDeadline(ctx context.Context, set func(time.Time) error) func() {
	if set == nil || ctx.Done() == nil {
		return func() {}
	}

	d, hasDeadline := ctx.Deadline()
	if hasDeadline {
		_ = set(d)
	}

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = set(aLongTimeAgo)
		close(done)
	})

	return func() {
		fired := !stop()
		if fired {
			<-done
		}
		if hasDeadline || fired {
			_ = set(time.Time{})
		}
	}
}

func readDeadlineFunc(r any) func(time.Time) error {
	if d, ok := r.(readDeadliner); ok {
		return d.SetReadDeadline
	}
	return nil
}

func writeDeadlineFunc(w any) func(time.Time) error {
	if d, ok := w.(writeDeadliner); ok {
		return d.SetWriteDeadline
	}
	return nil
}

// ctxErr prefers the context's error over the one the interrupted I/O
// call produced.
func ctxErr(ctx context.Context, err error) error {
	if e := ctx.Err(); e != nil {
		return e
	}
	return err
}
