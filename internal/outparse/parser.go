package outparse

import (
	"bufio"
	"context"
	"errors"
	"io"

	"cargoscan/internal/diag"
)

// Channel identifies the process stream a line came from.
type Channel uint8

const (
	Stdout Channel = iota
	Stderr
)

func (c Channel) String() string {
	if c == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Options configures a Parser.
type Options struct {
	// WorkDir resolves relative "-->" locations.
	WorkDir string
	// Reporter receives every emitted diagnostic. Must be safe for
	// concurrent use when both channels are fed from different goroutines.
	Reporter diag.Reporter
}

// Parser holds one LineStateMachine per channel. The two channels never share
// state, so StdOut and StdErr may be called from different goroutines; calls
// for the same channel must be serialized by the caller.
type Parser struct {
	reporter diag.Reporter
	machines [2]*LineStateMachine
}

// New creates a parser with idle machines for stdout and stderr.
func New(opts Options) *Parser {
	r := opts.Reporter
	if r == nil {
		r = diag.NopReporter{}
	}
	return &Parser{
		reporter: r,
		machines: [2]*LineStateMachine{
			NewLineStateMachine(opts.WorkDir),
			NewLineStateMachine(opts.WorkDir),
		},
	}
}

// StdOut feeds a line from standard output.
func (p *Parser) StdOut(line string) Result { return p.Feed(Stdout, line) }

// StdErr feeds a line from standard error.
func (p *Parser) StdErr(line string) Result { return p.Feed(Stderr, line) }

// Feed routes a line to the channel's machine and reports a completed block.
func (p *Parser) Feed(ch Channel, line string) Result {
	res, d := p.machine(ch).Feed(line)
	if d != nil {
		p.reporter.Report(d)
	}
	return res
}

// Machine exposes a channel's state machine for inspection.
func (p *Parser) Machine(ch Channel) *LineStateMachine {
	return p.machine(ch)
}

func (p *Parser) machine(ch Channel) *LineStateMachine {
	if ch == Stderr {
		return p.machines[1]
	}
	return p.machines[0]
}

// Flush closes pending blocks on both channels (end of stream).
func (p *Parser) Flush() {
	for _, m := range p.machines {
		if d := m.Flush(); d != nil {
			p.reporter.Report(d)
		}
	}
}

// FlushChannel closes the pending block of a single channel.
func (p *Parser) FlushChannel(ch Channel) {
	if d := p.machine(ch).Flush(); d != nil {
		p.reporter.Report(d)
	}
}

// LineFunc observes every line together with its classification.
type LineFunc func(ch Channel, line string, res Result)

// MaxLineBytes bounds a single line fed to a machine. Longer lines are cut
// at this length and the remainder is read and discarded.
const MaxLineBytes = 4 * 1024 * 1024

// ParseReader feeds r line by line into channel ch until EOF or ctx is done,
// then flushes that channel. onLine may be nil. On a read error the rest of
// r is drained so a writer on the other end never blocks.
func (p *Parser) ParseReader(ctx context.Context, ch Channel, r io.Reader, onLine LineFunc) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	feed := func() {
		line := string(buf)
		buf = buf[:0]
		res := p.Feed(ch, line)
		if onLine != nil {
			onLine(ch, line, res)
		}
	}
	for {
		chunk, more, err := br.ReadLine()
		if room := MaxLineBytes - len(buf); room > 0 && len(chunk) > 0 {
			buf = append(buf, chunk[:min(len(chunk), room)]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				_, _ = io.Copy(io.Discard, r)
				return err
			}
			if len(buf) > 0 {
				feed()
			}
			break
		}
		if more {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		feed()
	}
	p.FlushChannel(ch)
	return nil
}

// ParseLines is a convenience for batch input: it feeds lines to one channel,
// flushes, and returns the emitted diagnostics in order.
func ParseLines(workDir string, ch Channel, lines []string) []*diag.Diagnostic {
	collected := diag.NewBagReporter(0)
	p := New(Options{WorkDir: workDir, Reporter: collected})
	for _, line := range lines {
		p.Feed(ch, line)
	}
	p.FlushChannel(ch)
	return collected.Snapshot()
}
