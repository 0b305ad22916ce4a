// Package broker implements the single-threaded cooperative dispatcher that
// owns every piece of server state (spec.md §4.6). Reader and writer tasks
// run one per connection and talk to the broker only through its bounded
// events channel; the broker goroutine is the sole caller into bookstore
// and history, so neither package needs its own locking.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dtfdb/dtfd/internal/bookstore"
	"github.com/dtfdb/dtfd/internal/history"
	"github.com/dtfdb/dtfd/internal/metricsexport"
	"github.com/dtfdb/dtfd/internal/wire"
)

// Config is the subset of the server configuration the broker needs.
type Config struct {
	Addr        string
	MaxClients  int
	ChannelSize int
	Granularity time.Duration
	// Exporter receives a per-book size batch alongside every history
	// sample (spec.md §4.5 History); nil is replaced with a NoopExporter.
	Exporter metricsexport.Exporter
}

type eventKind int

const (
	evNewConnection eventKind = iota
	evCommand
	evParseError
	evDisconnect
)

// event is the broker's single inbound message shape, carrying whichever
// fields its kind needs.
type event struct {
	kind     eventKind
	connID   string
	push     chan []byte  // evNewConnection only
	cmd      wire.Command // evCommand only
	reply    chan<- Reply // evCommand, evParseError
	parseErr Reply        // evParseError only
}

// Reply is a command outcome bound for a connection's writer task.
type Reply struct {
	OK   bool
	Body []byte
}

// Broker owns a bookstore.Store and a history.Sampler and serializes every
// mutation to them through a single goroutine (Run).
type Broker struct {
	store   *bookstore.Store
	sampler *history.Sampler
	cfg     Config
	events  chan event

	listener net.Listener
	wg       sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	connCount int
}

// New creates a Broker over store and sampler. Run must be called to start
// the dispatcher goroutine before Start accepts connections.
func New(store *bookstore.Store, sampler *history.Sampler, cfg Config) *Broker {
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 1024
	}
	if cfg.Exporter == nil {
		cfg.Exporter = metricsexport.NoopExporter{}
	}
	return &Broker{
		store:   store,
		sampler: sampler,
		cfg:     cfg,
		events:  make(chan event, cfg.ChannelSize),
	}
}

// Run executes the broker's dispatch loop until ctx is cancelled or its
// events channel is closed. It must run in its own goroutine, and must be
// the only goroutine ever touching store or sampler.
func (b *Broker) Run(ctx context.Context) {
	var ticker *time.Ticker
	var tickCh <-chan time.Time
	if b.cfg.Granularity > 0 {
		ticker = time.NewTicker(b.cfg.Granularity)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ev)
		case ts := <-tickCh:
			b.sampleHistory(ts)
		}
	}
}

func (b *Broker) dispatch(ev event) {
	switch ev.kind {
	case evNewConnection:
		b.store.RegisterConnection(ev.connID, ev.push)
	case evDisconnect:
		b.store.Disconnect(ev.connID)
	case evCommand:
		reply := b.handleCommand(ev.connID, ev.cmd)
		ev.reply <- reply
	case evParseError:
		ev.reply <- ev.parseErr
	}
}

func (b *Broker) sampleHistory(ts time.Time) {
	counts := make(map[string]uint64)
	sizes := make([]metricsexport.BookSize, 0, len(b.store.Names()))
	for _, name := range b.store.Names() {
		book, ok := b.store.Book(name)
		if !ok {
			continue
		}
		counts[name] = book.NominalCount()
		sizes = append(sizes, metricsexport.BookSize{
			Name:    name,
			DiskSz:  book.DiskSize(),
			MemSize: book.MemSize(),
		})
	}
	b.sampler.Sample(strconv.FormatInt(ts.Unix(), 10), counts)

	if err := b.cfg.Exporter.Export(context.Background(), sizes); err != nil {
		slog.Warn("broker: metrics export failed", "error", err)
	}
}

// Start listens on cfg.Addr and accepts connections until ctx is cancelled
// or Close is called. It blocks; callers typically run it in its own
// goroutine alongside Run.
func (b *Broker) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", b.cfg.Addr)
	if err != nil {
		return fmt.Errorf("broker: listen: %w", err)
	}

	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()

	slog.Info("broker: listening", "addr", b.cfg.Addr)

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return nil
			}
			slog.Error("broker: accept failed", "error", err)
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(5 * time.Minute)
		}

		b.mu.Lock()
		current := b.connCount
		b.mu.Unlock()
		if b.cfg.MaxClients > 0 && current >= b.cfg.MaxClients {
			conn.Close()
			slog.Warn("broker: max clients reached, rejecting connection")
			continue
		}

		b.mu.Lock()
		b.connCount++
		b.mu.Unlock()

		b.wg.Add(1)
		go func(c net.Conn) {
			defer b.wg.Done()
			defer func() {
				b.mu.Lock()
				b.connCount--
				b.mu.Unlock()
			}()
			b.handleConnection(ctx, c)
		}(conn)
	}
}

// Addr returns the address Start bound to, once it has been called. It
// returns nil if the broker isn't listening yet.
func (b *Broker) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Close stops accepting connections and waits for every in-flight
// connection goroutine to finish.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	listener := b.listener
	b.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	b.wg.Wait()
	return err
}

// handleConnection drives one TCP connection: a reader loop (this
// goroutine) parsing requests and forwarding them to the broker, and a
// writer goroutine draining both subscription pushes and command replies.
func (b *Broker) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := conn.RemoteAddr().String()
	push := make(chan []byte, b.cfg.ChannelSize)
	replies := make(chan Reply, b.cfg.ChannelSize)
	done := make(chan struct{})

	select {
	case b.events <- event{kind: evNewConnection, connID: connID, push: push}:
	case <-ctx.Done():
		return
	}

	go writerLoop(conn, push, replies, done)
	defer close(done)

	rd := wire.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := rd.ReadRequest()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("broker: connection closed", "conn", connID, "error", err)
			}
			break
		}

		cmd, err := wire.Parse(payload)
		if err != nil {
			// Route through the broker's event stream, not straight onto
			// replies, so this error lands in command order relative to
			// any evCommand already in flight for this connection (both
			// are only ever appended to replies by the single broker
			// goroutine, in the order it received the events).
			errReply := Reply{OK: false, Body: []byte(stripWirePrefix(err))}
			select {
			case b.events <- event{kind: evParseError, connID: connID, reply: replies, parseErr: errReply}:
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case b.events <- event{kind: evCommand, connID: connID, cmd: cmd, reply: replies}:
		case <-ctx.Done():
			return
		}
	}

	select {
	case b.events <- event{kind: evDisconnect, connID: connID}:
	case <-ctx.Done():
	}
}

// stripWirePrefix strips the internal "wire: " error-wrapping prefix, since
// only the bare diagnostic belongs in a wire error body (wire.Writer.WriteErr
// adds the "ERR: " wire-level prefix itself).
func stripWirePrefix(err error) string {
	const prefix = "wire: "
	msg := err.Error()
	for len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
		msg = msg[len(prefix):]
	}
	return msg
}

func writerLoop(conn net.Conn, push <-chan []byte, replies <-chan Reply, done <-chan struct{}) {
	w := wire.NewWriter(conn)
	for {
		select {
		case <-done:
			return
		case body, ok := <-push:
			if !ok {
				return
			}
			if err := w.WriteOK(body); err != nil {
				return
			}
		case r, ok := <-replies:
			if !ok {
				return
			}
			var err error
			if r.OK {
				err = w.WriteOK(r.Body)
			} else {
				err = w.WriteErr(string(r.Body))
			}
			if err != nil {
				return
			}
		}
	}
}
