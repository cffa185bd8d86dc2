package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a driver-scope heartbeat every interval while a command
// runs. A heartbeat with no span ending around it points at a hung cargo
// child.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat starts beating on tracer. It returns nil when tracing is
// off or interval is not positive; Stop on nil is fine.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go h.beat(tracer, interval)
	return h
}

func (h *Heartbeat) beat(tracer Tracer, interval time.Duration) {
	defer close(h.done)
	start := time.Now()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for n := 1; ; n++ {
		select {
		case <-h.stop:
			return
		case now := <-tick.C:
			tracer.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				Name:   "heartbeat",
				Detail: "#" + strconv.Itoa(n) + " after " + now.Sub(start).Round(time.Millisecond).String(),
			})
		}
	}
}

// Stop ends the heartbeat and waits for the last event to be emitted.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
