//go:build windows

package wpipe

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// limboCeiling bounds the number of resident flusher goroutines. Beyond
// this many concurrently-draining channels, a drop spawns a one-shot
// goroutine instead of growing the pool further.
const limboCeiling = 32

var defaultLimbo = newLimbo(limboCeiling)

type limbo struct {
	mu      sync.Mutex
	slots   []chan *Pipe
	ceiling int
}

func newLimbo(ceiling int) *limbo {
	return &limbo{ceiling: ceiling}
}

// Enqueue hands a dirty pipe off to the limbo pool: a background goroutine
// flushes it (blocking until the peer has drained the kernel buffer),
// disconnects it if it was a server-side instance, and closes it. The
// caller's drop therefore never blocks on a peer that may never read.
func Enqueue(p *Pipe) {
	defaultLimbo.enqueue(p)
}

func (l *limbo) enqueue(p *Pipe) {
	l.mu.Lock()
	for _, ch := range l.slots {
		select {
		case ch <- p:
			l.mu.Unlock()
			return
		default:
		}
	}
	if len(l.slots) < l.ceiling {
		ch := make(chan *Pipe, 1)
		l.slots = append(l.slots, ch)
		go flusherLoop(ch)
		ch <- p
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	go flushOne(p)
}

func flusherLoop(ch chan *Pipe) {
	for p := range ch {
		flushOne(p)
	}
}

// flushOne performs the actual flush/disconnect/close sequence for one
// corpse. Flush errors are never escalated: the stream has already been
// dropped, and there is no caller left to report to.
func flushOne(p *Pipe) {
	if err := p.win32File.Flush(); err != nil {
		logrus.WithError(err).WithField("path", p.path).Debug("wpipe: limbo flush failed")
	}
	if p.isServer {
		if err := p.Disconnect(); err != nil {
			logrus.WithError(err).WithField("path", p.path).Debug("wpipe: limbo disconnect failed")
		}
	}
	if err := p.Close(); err != nil {
		logrus.WithError(err).WithField("path", p.path).Debug("wpipe: limbo close failed")
	}
}
