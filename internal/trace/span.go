package trace

import (
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq hands out event sequence numbers in emission order.
func NextSeq() uint64 { return seqCounter.Add(1) }

// NextSpanID hands out span ids; 0 is reserved for "no span".
func NextSpanID() uint64 { return spanCounter.Add(1) }

// Span is one timed operation: a command, a scan, a phase of a scan or a
// cargo process. A Span that was not emitted (tracing off, scope filtered)
// has id 0 and all its methods are no-ops.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
	ended   atomic.Bool
}

func (s *Span) live() bool {
	return s != nil && s.id != 0 && s.tracer != nil && s.tracer.Enabled()
}

// Begin emits the begin event of a span under parent. Prefer StartSpan,
// which takes the tracer and parent from a context.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{}
	}
	s := &Span{
		tracer:  t,
		id:      NextSpanID(),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return s
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	ev := &Event{
		Time:     at,
		Seq:      NextSeq(),
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
	}
	if kind == KindSpanEnd {
		ev.Extra = s.extra
	}
	return ev
}

// End emits the end event with detail as the outcome and returns the span's
// duration. Only the first call emits.
func (s *Span) End(detail string) time.Duration {
	if !s.live() || !s.ended.CompareAndSwap(false, true) {
		return 0
	}
	now := time.Now()
	s.tracer.Emit(s.event(KindSpanEnd, now, detail))
	return now.Sub(s.started)
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.live() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// Fail records err as the "error" extra; nil is ignored.
func (s *Span) Fail(err error) *Span {
	if err == nil {
		return s
	}
	return s.WithExtra("error", err.Error())
}

// ID is the span id, 0 for a span that was not emitted.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}
