package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeController struct {
	stops    atomic.Int32
	restarts atomic.Int32
}

func (f *fakeController) Stop(context.Context) error    { f.stops.Add(1); return nil }
func (f *fakeController) Restart(context.Context) error { f.restarts.Add(1); return nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestHandler() (*signalHandler, *fakeController, *fakeClock, *atomic.Int32) {
	ctrl := &fakeController{}
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	aborts := &atomic.Int32{}
	h := newSignalHandler(ctrl, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	h.now = clock.now
	h.abort = func() { aborts.Add(1) }
	return h, ctrl, clock, aborts
}

func TestSignals_SecondInterruptAborts(t *testing.T) {
	h, ctrl, clock, aborts := newTestHandler()

	h.handle(os.Interrupt)
	clock.advance(2 * time.Second)
	h.handle(os.Interrupt)
	h.wait()

	assert.Equal(t, int32(1), ctrl.stops.Load())
	assert.Equal(t, int32(1), aborts.Load())
}

func TestSignals_InterruptsFarApartOnlyStop(t *testing.T) {
	h, ctrl, clock, aborts := newTestHandler()

	h.handle(os.Interrupt)
	clock.advance(interruptWindow + time.Second)
	h.handle(os.Interrupt)
	h.wait()

	assert.Equal(t, int32(2), ctrl.stops.Load())
	assert.Zero(t, aborts.Load())
}

func TestSignals_TermQuitHup(t *testing.T) {
	h, ctrl, _, aborts := newTestHandler()

	h.handle(syscall.SIGTERM)
	h.handle(syscall.SIGQUIT)
	h.handle(syscall.SIGTERM)
	h.handle(syscall.SIGHUP)
	h.wait()

	assert.Equal(t, int32(3), ctrl.stops.Load(), "TERM and QUIT never escalate")
	assert.Equal(t, int32(1), ctrl.restarts.Load())
	assert.Zero(t, aborts.Load())
}
