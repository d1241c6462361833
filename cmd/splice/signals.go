package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"
)

// interruptWindow is how close together two INTs must arrive to abort.
const interruptWindow = 5 * time.Second

// controller is the part of the orchestrator signals act on.
type controller interface {
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

// signalHandler maps process signals to orchestrator calls. Stop and
// Restart run in the background so a second signal is seen while the first
// is still draining.
type signalHandler struct {
	ctrl    controller
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	abort   func()

	mu        sync.Mutex
	lastInt   time.Time
	interrupt int
	wg        sync.WaitGroup
}

func newSignalHandler(ctrl controller, logger *slog.Logger, timeout time.Duration) *signalHandler {
	return &signalHandler{
		ctrl:    ctrl,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		abort: func() {
			logger.Error("Multiple interrupts received, aborting")
			os.Exit(130)
		},
	}
}

// handle reacts to one signal.
func (h *signalHandler) handle(sig os.Signal) {
	switch sig {
	case os.Interrupt:
		if h.repeatedInterrupt() {
			h.abort()
			return
		}
		h.logger.Info("Interrupt received, stopping (interrupt again within 5s to abort)")
		h.async(h.stop)
	case syscall.SIGTERM, syscall.SIGQUIT:
		h.logger.Info("Stop signal received", "signal", sig.String())
		h.async(h.stop)
	case syscall.SIGHUP:
		h.logger.Info("Hangup received, restarting readers")
		h.async(h.restart)
	}
}

// repeatedInterrupt counts an INT and reports whether it is the second
// within interruptWindow.
func (h *signalHandler) repeatedInterrupt() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if now.Sub(h.lastInt) > interruptWindow {
		h.interrupt = 0
	}
	h.interrupt++
	h.lastInt = now
	return h.interrupt > 1
}

func (h *signalHandler) async(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *signalHandler) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.ctrl.Stop(ctx); err != nil {
		h.logger.Warn("Stop did not finish in time", "timeout", h.timeout, "error", err)
	}
}

func (h *signalHandler) restart() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.ctrl.Restart(ctx); err != nil {
		h.logger.Error("Restart failed", "error", err)
	}
}

// wait blocks until every Stop or Restart started by a signal returned.
func (h *signalHandler) wait() {
	h.wg.Wait()
}
