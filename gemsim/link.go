package gemsim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ringbuf "github.com/lab47/gemnet/pkg/ring_buf"
	"github.com/lab47/gemnet/pkg/tap"
	"github.com/lab47/lsvd/logger"
)

// Wire is a raw frame device, such as a TAP interface.
type Wire interface {
	ReadFrame(buf []byte) (int, error)
	WriteFrame(frame []byte) error
}

const frameBufferSize = 2048

var frameBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, 0, frameBufferSize)
		return &b
	},
}

// TapLink connects a MAC to a wire. Transmitted frames are queued and
// written by a background goroutine so the MAC never blocks on the wire;
// frames read from the wire are handed to the MAC's receive path.
type TapLink struct {
	log  logger.Logger
	wire Wire
	mac  *MAC

	txbuf    *ringbuf.RingBuf[*[]byte]
	txcharge chan struct{}
	txtick   *time.Ticker

	txframes atomic.Int64
	rxframes atomic.Int64
	droprx   atomic.Int64
}

var _ Link = (*TapLink)(nil)

// NewTapLink attaches mac to wire and starts the transmit goroutine, which
// runs until ctx is done.
func NewTapLink(ctx context.Context, log logger.Logger, wire Wire, mac *MAC, sz int) *TapLink {
	l := &TapLink{
		log:      log,
		wire:     wire,
		mac:      mac,
		txbuf:    ringbuf.NewRingBuf[*[]byte](sz),
		txcharge: make(chan struct{}, 1),
		txtick:   time.NewTicker(10 * time.Millisecond),
	}

	mac.SetLink(l)

	go l.pollTX(ctx)

	return l
}

// OpenTapLink opens the TAP interface name and attaches mac to it.
func OpenTapLink(ctx context.Context, log logger.Logger, name string, mac *MAC) (*TapLink, *tap.Interface, error) {
	iface, err := tap.Open(name, false)
	if err != nil {
		return nil, nil, err
	}

	log.Info("opened tap", "name", iface.Name())

	return NewTapLink(ctx, log, iface, mac, 256), iface, nil
}

// Transmit queues a copy of frame for the wire. Frames are dropped when
// the queue is full.
func (l *TapLink) Transmit(frame []byte) error {
	bp := frameBuffers.Get().(*[]byte)
	*bp = append((*bp)[:0], frame...)

	if !l.txbuf.Push(bp) {
		frameBuffers.Put(bp)
		l.log.Warn("tap transmit queue full, dropping frame", "drops", l.txbuf.Drops())
		return nil
	}

	select {
	case l.txcharge <- struct{}{}:
	default:
	}

	return nil
}

func (l *TapLink) pollTX(ctx context.Context) {
	defer l.txtick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.txtick.C:
			//ok
		case <-l.txcharge:
			//ok
		}

		for {
			bp, ok := l.txbuf.Pop()
			if !ok {
				break
			}

			err := l.wire.WriteFrame(*bp)
			frameBuffers.Put(bp)

			if err != nil {
				l.log.Error("error writing frame to tap", "error", err)
				continue
			}

			l.txframes.Add(1)
		}
	}
}

// ReceiveFrames reads frames from the wire into the MAC until the wire
// fails or ctx is done.
func (l *TapLink) ReceiveFrames(ctx context.Context) error {
	frame := make([]byte, frameBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := l.wire.ReadFrame(frame)
		if err != nil {
			return err
		}

		body := frame[:n]

		if l.log.IsTrace() {
			l.log.Trace("received tap frame", "len", len(body))
		}

		if l.mac.Receive(body) {
			l.rxframes.Add(1)
		} else {
			l.droprx.Add(1)
		}
	}
}

// Counts returns the frames written to and accepted from the wire, and the
// frames the MAC refused.
func (l *TapLink) Counts() (tx, rx, droppedRx int64) {
	return l.txframes.Load(), l.rxframes.Load(), l.droprx.Load()
}
