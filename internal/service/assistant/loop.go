package assistant

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/voicebot/backend/internal/service/session"
)

var ErrLoopClosed = errors.New("session loop closed")

type submission struct {
	ctx    context.Context
	event  Event
	result chan<- result
}

type result struct {
	outcome *Outcome
	err     error
}

// Loop consumes the events of one session one at a time.
type Loop struct {
	orch    *Orchestrator
	session *session.Session

	events    chan submission
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewLoop starts the loop goroutine. Close must be called to stop it.
func NewLoop(orch *Orchestrator, sess *session.Session, queue int) *Loop {
	if queue < 0 {
		queue = 0
	}
	l := &Loop{
		orch:    orch,
		session: sess,
		events:  make(chan submission, queue),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Session returns the session owned by the loop.
func (l *Loop) Session() *session.Session {
	return l.session
}

// Submit enqueues ev and waits for its outcome.
func (l *Loop) Submit(ctx context.Context, ev Event) (*Outcome, error) {
	res := make(chan result, 1)

	select {
	case l.events <- submission{ctx: ctx, event: ev, result: res}:
	case <-l.done:
		return nil, ErrLoopClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-res:
		return r.outcome, r.err
	case <-l.stopped:
		// 循环在处理前退出
		select {
		case r := <-res:
			return r.outcome, r.err
		default:
			return nil, ErrLoopClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the loop. Pending submissions fail with ErrLoopClosed.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	<-l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			return
		case sub := <-l.events:
			outcome, err := l.orch.Dispatch(sub.ctx, l.session, sub.event)
			sub.result <- result{outcome: outcome, err: err}
		}
	}
}
