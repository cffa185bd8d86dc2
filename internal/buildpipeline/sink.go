package buildpipeline

import "sync"

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(Event)

func (f FuncSink) OnEvent(evt Event) {
	if f != nil {
		f(evt)
	}
}

// MultiSink fans events out in order.
type MultiSink []ProgressSink

func (m MultiSink) OnEvent(evt Event) {
	for _, s := range m {
		if s != nil {
			s.OnEvent(evt)
		}
	}
}

// SerialSink serializes calls into Next so it sees one event at a time.
type SerialSink struct {
	mu   sync.Mutex
	Next ProgressSink
}

func (s *SerialSink) OnEvent(evt Event) {
	if s == nil || s.Next == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Next.OnEvent(evt)
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
