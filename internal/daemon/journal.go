package daemon

import (
	"strings"

	"github.com/coolftc/prompt/internal/bus"
	"go.uber.org/zap"
)

// journalBuffer is the subscription depth; the journal never blocks
// publishers, so a burst beyond it is dropped.
const journalBuffer = 64

// Journal writes daemon events to the log. Prompt and push events are kept
// at Info so the log reads as a delivery history.
type Journal struct {
	bus    *bus.Bus
	logger *zap.Logger
	quit   chan struct{}
	done   chan struct{}
}

func NewJournal(b *bus.Bus, logger *zap.Logger) *Journal {
	return &Journal{bus: b, logger: logger.Named("events")}
}

func (j *Journal) Start() {
	ch, unsubscribe := j.bus.Subscribe("", journalBuffer)
	j.quit = make(chan struct{})
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		defer unsubscribe()
		for {
			select {
			case evt := <-ch:
				j.record(evt)
			case <-j.quit:
				j.drain(ch)
				return
			}
		}
	}()
}

// Stop unsubscribes and waits for queued events to be written.
func (j *Journal) Stop() {
	if j.quit == nil {
		return
	}
	close(j.quit)
	<-j.done
}

func (j *Journal) drain(ch <-chan bus.Event) {
	for {
		select {
		case evt := <-ch:
			j.record(evt)
		default:
			return
		}
	}
}

func (j *Journal) record(evt bus.Event) {
	fields := []zap.Field{
		zap.String("id", evt.ID),
		zap.String("kind", evt.Kind),
		zap.Any("payload", evt.Payload),
	}
	switch {
	case strings.HasPrefix(evt.Kind, "prompt."), strings.HasPrefix(evt.Kind, "push."):
		j.logger.Info("event", fields...)
	case evt.Kind == bus.KindRefreshFailed:
		j.logger.Warn("event", fields...)
	default:
		j.logger.Debug("event", fields...)
	}
}
