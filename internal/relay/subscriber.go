package relay

// Subscriber is one live deliverable endpoint, independent of transport.
//
// Send must not block on network I/O: implementations enqueue into a
// bounded FIFO drained by their own writer, which keeps per-subscriber
// order and stops one slow client from stalling a broadcast.
type Subscriber interface {
	ID() string
	Send(evt Event) error
	Close()
	Done() <-chan struct{}
}
