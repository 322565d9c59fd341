package sim

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

type Queue struct {
	dev *Device
}

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	batch := make([]*CommandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return errors.Newf("foreign command list %T", l)
		}
		if !cl.closed {
			return errors.Newf("command list %q submitted before Close", cl.label)
		}
		batch = append(batch, cl)
	}

	q.dev.mutex.Lock()
	for _, cl := range batch {
		for _, r := range cl.refs {
			r.busy++
		}
	}
	q.dev.mutex.Unlock()
	return q.dev.enqueue(queued{lists: batch})
}

func (q *Queue) Signal(t gpu.Timeline, value uint64) error {
	tl, ok := t.(*Timeline)
	if !ok {
		return errors.Newf("foreign timeline %T", t)
	}
	return q.dev.enqueue(queued{timeline: tl, value: value})
}

type Timeline struct {
	dev       *Device
	completed uint64
}

func (d *Device) NewTimeline() (gpu.Timeline, error) {
	return &Timeline{dev: d}, nil
}

func (t *Timeline) Completed() uint64 {
	t.dev.mutex.Lock()
	defer t.dev.mutex.Unlock()
	return t.completed
}

func (t *Timeline) Wait(ctx context.Context, value uint64) error {
	for {
		t.dev.mutex.Lock()
		if t.completed >= value {
			t.dev.mutex.Unlock()
			return nil
		}
		ch := t.dev.progress
		t.dev.mutex.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Timeline) Destroy() {}
