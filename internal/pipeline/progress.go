package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linkbrief/linkbrief/internal/models"
)

// progressFrames cycle through the clock faces while a task is in flight.
var progressFrames = []string{
	"🕐", "🕑", "🕒", "🕓", "🕔", "🕕", "🕖", "🕗", "🕘", "🕙", "🕚", "🕛",
}

const (
	progressText     = "Working on it…"
	progressInterval = 4 * time.Second
)

// progressHandle owns the animated status message for one task.
type progressHandle struct {
	transport Transport
	ref       MessageRef
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sent   bool
}

// startProgress posts the status message and starts the frame loop. A
// transport failure here downgrades to a no-op handle; progress is
// cosmetic.
func (p *Pipeline) startProgress(ctx context.Context, task *models.Task) *progressHandle {
	h := &progressHandle{transport: p.transport, logger: p.logger}

	ref, err := p.transport.Send(ctx, task.ChatID, progressFrames[0]+" "+progressText)
	if err != nil {
		p.logger.Warn("failed to send progress message", "task_id", task.ID, "error", err)
		return h
	}
	h.ref = ref
	h.sent = true

	animCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Add(1)
	go h.animate(animCtx)
	return h
}

func (h *progressHandle) animate(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame = (frame + 1) % len(progressFrames)
			if err := h.transport.Edit(ctx, h.ref, progressFrames[frame]+" "+progressText); err != nil {
				// Editing can race with deletion at shutdown; stop quietly.
				return
			}
		}
	}
}

// stop halts the animation and removes the status message.
func (h *progressHandle) stop() {
	if !h.sent {
		return
	}
	h.cancel()
	h.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.transport.Delete(ctx, h.ref); err != nil {
		h.logger.Debug("failed to delete progress message", "error", err)
	}
}
