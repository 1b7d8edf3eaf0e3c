package notify

import (
	"context"
	"time"

	"github.com/stayware/booking/internal/logger"
)

type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindSpotAvailable    Kind = "spot_available"
)

type Message struct {
	Kind          Kind
	To            string
	GuestID       string
	UnitID        string
	UnitName      string
	ReservationID string
	EntryID       string
	CheckIn       time.Time
	CheckOut      time.Time
	TotalAmount   float64
}

// Sender delivers a single message. Best effort: a failed delivery is the
// sender's problem to report, never the booking's.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher decouples notification delivery from the admission path. Enqueue
// never blocks; a full queue drops the message and logs it, keeping critical
// sections short.
type Dispatcher struct {
	l      *logger.Logger
	sender Sender
	queue  chan Message
	done   chan struct{}
}

type DispatcherConfig struct {
	L         *logger.Logger
	Sender    Sender
	QueueSize int
}

const defaultQueueSize = 256

func NewDispatcher(conf DispatcherConfig) *Dispatcher {
	size := conf.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Dispatcher{
		l:      conf.L,
		sender: conf.Sender,
		queue:  make(chan Message, size),
		done:   make(chan struct{}),
	}
}

// Start runs the delivery worker until ctx is done and the queue is drained.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)

		for {
			select {
			case msg := <-d.queue:
				d.deliver(ctx, msg)
			case <-ctx.Done():
				d.drain()

				return
			}
		}
	}()
}

// Wait blocks until the worker has stopped.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.l.LogErrorf(
			"Notification queue is full, dropping %v notification for guest %v",
			msg.Kind,
			msg.GuestID,
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if err := d.sender.Send(ctx, msg); err != nil {
		d.l.LogErrorf(
			"Could not send %v notification to %v: %v",
			msg.Kind,
			msg.To,
			err.Error(),
		)

		return
	}

	d.l.LogInfo("Sent %v notification to %v", msg.Kind, msg.To)
}

func (d *Dispatcher) drain() {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

// LogSender is used when no SMTP transport is configured, e.g. in the demo
// deployment backed by the in-memory store.
type LogSender struct {
	l *logger.Logger
}

func NewLogSender(l *logger.Logger) *LogSender {
	return &LogSender{l: l}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.l.LogInfo(
		"Notification %v for %v: unit %v, [%v, %v)",
		msg.Kind,
		msg.To,
		msg.UnitID,
		msg.CheckIn.Format(time.DateOnly),
		msg.CheckOut.Format(time.DateOnly),
	)

	return nil
}
