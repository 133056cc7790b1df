package workflowtest

import (
	"context"
	"sync"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

// Recorder 记录收到的通知，Err 不为空时每次都返回该错误
type Recorder struct {
	mu     sync.Mutex
	events []domain.Notification
	Err    error
}

func (r *Recorder) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, n)
	return r.Err
}

func (r *Recorder) Events() []domain.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]domain.NotificationEvent, 0, len(r.events))
	for _, n := range r.events {
		events = append(events, n.Event)
	}
	return events
}
