package bookstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dtfdb/dtfd/internal/dtf"
	"github.com/dtfdb/dtfd/internal/record"
	"github.com/dtfdb/dtfd/internal/uploader"
	"github.com/dtfdb/dtfd/internal/wire"
)

// Store owns every book, the subscription registry, and the connection
// registry. It is mutated exclusively by the broker goroutine (spec.md
// §4.6); none of its methods are safe for concurrent use.
type Store struct {
	dir           string
	autoflush     bool
	flushInterval int
	uploader      uploader.Uploader

	books map[string]*Book

	// subscribers maps a symbol to the set of connections subscribed to it,
	// keyed by connection id (the remote address).
	subscribers map[string]map[string]struct{}

	connections map[string]*Connection
}

// Connection is one live client connection as seen by the broker: its
// outbound channel (drained by a per-connection writer goroutine) and its
// current default book, set by USE.
type Connection struct {
	ID          string
	Outbound    chan []byte
	CurrentBook string
}

// New creates an empty Store rooted at dir, flushing books every
// flushInterval records when autoflush is enabled. up ships every closed
// flush to an object store; pass nil for the default NoopUploader.
func New(dir string, autoflush bool, flushInterval int, up uploader.Uploader) *Store {
	if up == nil {
		up = uploader.NoopUploader{}
	}
	return &Store{
		dir:           dir,
		autoflush:     autoflush,
		flushInterval: flushInterval,
		uploader:      up,
		books:         make(map[string]*Book),
		subscribers:   make(map[string]map[string]struct{}),
		connections:   make(map[string]*Connection),
	}
}

// Dir returns the configured DTF data directory.
func (s *Store) Dir() string { return s.dir }

// Autoflush reports whether autoflush is enabled.
func (s *Store) Autoflush() bool { return s.autoflush }

// FlushInterval returns the configured autoflush interval.
func (s *Store) FlushInterval() int { return s.flushInterval }

// Create registers a new, empty book named name. It errors if one already
// exists.
func (s *Store) Create(name string) error {
	if _, ok := s.books[name]; ok {
		return fmt.Errorf("bookstore: book %q already exists", name)
	}
	s.books[name] = newBook(name, s.dir, s.autoflush, s.flushInterval, s.uploader)
	return nil
}

// ensureDefault implicitly creates the literal "default" book (spec.md §3:
// "A Book is created implicitly for the literal name `default`") the first
// time anything asks for it by name. Every other book requires an explicit
// CREATE.
func (s *Store) ensureDefault(name string) {
	if name != defaultBookName {
		return
	}
	if _, ok := s.books[name]; !ok {
		s.books[name] = newBook(name, s.dir, s.autoflush, s.flushInterval, s.uploader)
	}
}

// Exists reports whether a book named name has been created.
func (s *Store) Exists(name string) bool {
	s.ensureDefault(name)
	_, ok := s.books[name]
	return ok
}

// Book returns the named book, or false if it doesn't exist.
func (s *Store) Book(name string) (*Book, bool) {
	s.ensureDefault(name)
	b, ok := s.books[name]
	return b, ok
}

// Names returns every book name, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.books))
	for name := range s.books {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Insert adds u to the named book and fans a raw-insert message out to
// every subscriber of that symbol. It errors if the book doesn't exist.
func (s *Store) Insert(name string, u record.Update) error {
	s.ensureDefault(name)
	b, ok := s.books[name]
	if !ok {
		return fmt.Errorf("bookstore: book %q not found", name)
	}
	if err := b.Add(u); err != nil {
		return err
	}
	s.publish(name, u)
	return nil
}

// ClearAll clears every book's in-memory buffer.
func (s *Store) ClearAll() {
	for _, b := range s.books {
		if err := b.Clear(); err != nil {
			slog.Warn("bookstore: clear failed", "book", b.Name, "error", err)
		}
	}
}

// FlushAll flushes every book's in-memory buffer to disk.
func (s *Store) FlushAll() {
	for _, b := range s.books {
		if err := b.Flush(); err != nil {
			slog.Warn("bookstore: flush failed", "book", b.Name, "error", err)
		}
	}
}

// CountAll returns the sum of every book's durable (nominal) count.
func (s *Store) CountAll() uint64 {
	var total uint64
	for _, b := range s.books {
		total += b.NominalCount()
	}
	return total
}

// CountAllInMem returns the sum of every book's in-memory buffer length.
func (s *Store) CountAllInMem() uint64 {
	var total uint64
	for _, b := range s.books {
		total += uint64(b.InMemoryCount())
	}
	return total
}

// Subscribe registers connID as a subscriber to symbol. The symbol need not
// already exist as a book.
func (s *Store) Subscribe(symbol, connID string) {
	set, ok := s.subscribers[symbol]
	if !ok {
		set = make(map[string]struct{})
		s.subscribers[symbol] = set
	}
	set[connID] = struct{}{}
}

// SubscriberCount returns the total number of (symbol, connection)
// subscription pairs, used by the INFO "subs" field.
func (s *Store) SubscriberCount() int {
	n := 0
	for _, set := range s.subscribers {
		n += len(set)
	}
	return n
}

// publish enqueues a raw-insert message for u onto every subscriber of
// symbol's outbound channel. A full channel means a slow reader; the
// message is dropped and logged rather than blocking the broker, since the
// broker is the sole goroutine serializing all state transitions and must
// never stall on a single connection's backpressure.
func (s *Store) publish(symbol string, u record.Update) {
	set, ok := s.subscribers[symbol]
	if !ok || len(set) == 0 {
		return
	}
	payload := wire.EncodeRawInsert(symbol, u)
	for connID := range set {
		conn, ok := s.connections[connID]
		if !ok {
			continue
		}
		select {
		case conn.Outbound <- payload:
		default:
			slog.Warn("bookstore: dropping subscription message, outbound channel full",
				"symbol", symbol, "connection", connID)
		}
	}
}

// defaultBookName is the current-book value a new connection starts with,
// before any USE — matching the reference connection's initial book_entry.
const defaultBookName = "default"

// RegisterConnection adds a new connection to the registry.
func (s *Store) RegisterConnection(id string, outbound chan []byte) *Connection {
	c := &Connection{ID: id, Outbound: outbound, CurrentBook: defaultBookName}
	s.connections[id] = c
	return c
}

// Connection returns the connection registered under id.
func (s *Store) Connection(id string) (*Connection, bool) {
	c, ok := s.connections[id]
	return c, ok
}

// SetCurrentBook updates id's default book, used to resolve ADD/INSERT
// without an explicit INTO clause.
func (s *Store) SetCurrentBook(id, name string) {
	if c, ok := s.connections[id]; ok {
		c.CurrentBook = name
	}
}

// Use switches id's current book to name, loading name's on-disk contents
// into memory the way the reference USE command does. It errors if name
// doesn't exist.
func (s *Store) Use(id, name string) error {
	s.ensureDefault(name)
	b, ok := s.books[name]
	if !ok {
		return fmt.Errorf("bookstore: book %q not found", name)
	}
	if err := b.Load(); err != nil {
		return err
	}
	s.SetCurrentBook(id, name)
	return nil
}

// ConnectionCount returns the number of live connections, used by the INFO
// "clis" field.
func (s *Store) ConnectionCount() int { return len(s.connections) }

// Disconnect removes id from the connection registry and every symbol's
// subscriber set.
func (s *Store) Disconnect(id string) {
	delete(s.connections, id)
	for _, set := range s.subscribers {
		delete(set, id)
	}
}

// ScanDir creates a Book for every ".dtf" file already present in the data
// directory (spec.md §3: a Book's lifecycle includes "on server startup by
// scanning the data folder"). Each book is named after the file's header
// symbol; a file whose name doesn't match its own header, or whose header
// can't be read, is skipped with a log line rather than failing startup.
// Existing in-memory books (e.g. a prior ScanDir or explicit Create) are
// left untouched.
func (s *Store) ScanDir() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dtf") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		meta, err := readMeta(path)
		if err != nil {
			slog.Warn("bookstore: skipping unreadable file during startup scan", "path", path, "error", err)
			continue
		}
		if meta.Symbol+".dtf" != e.Name() {
			slog.Warn("bookstore: skipping file whose name doesn't match its header symbol", "path", path, "symbol", meta.Symbol)
			continue
		}
		if _, ok := s.books[meta.Symbol]; ok {
			continue
		}
		b := newBook(meta.Symbol, s.dir, s.autoflush, s.flushInterval, s.uploader)
		b.nominalCount = meta.Count
		s.books[meta.Symbol] = b
	}
	return nil
}

func readMeta(path string) (dtf.Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return dtf.Meta{}, err
	}
	defer f.Close()
	return dtf.ReadMeta(f)
}
