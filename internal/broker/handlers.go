package broker

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dtfdb/dtfd/internal/query"
	"github.com/dtfdb/dtfd/internal/wire"
)

// handleCommand executes cmd on behalf of connID and returns the reply to
// deliver on its outbound channel. It is called only from Run's dispatch
// loop, so it may freely mutate b.store and b.sampler.
func (b *Broker) handleCommand(connID string, cmd wire.Command) Reply {
	switch cmd.Kind {
	case wire.KindPing:
		return ok("PONG")
	case wire.KindHelp:
		return ok(wire.HelpText)
	case wire.KindInfo:
		return ok(b.infoJSON())
	case wire.KindPerf:
		return ok(b.perfJSON())
	case wire.KindCreate:
		return b.handleCreate(cmd.Name)
	case wire.KindUse:
		return b.handleUse(connID, cmd.Name)
	case wire.KindExists:
		return b.handleExists(cmd.Name)
	case wire.KindSubscribe:
		return b.handleSubscribe(connID, cmd.Name)
	case wire.KindInsert, wire.KindRawInsert:
		return b.handleInsert(connID, cmd)
	case wire.KindCount:
		return b.handleCount(connID, cmd)
	case wire.KindClear:
		return b.handleClear(connID, cmd)
	case wire.KindFlush:
		return b.handleFlush(connID, cmd)
	case wire.KindGet:
		return b.handleGet(connID, cmd)
	default:
		return errReply(wire.ErrUnknownCommand)
	}
}

func ok(body string) Reply       { return Reply{OK: true, Body: []byte(body)} }
func okBytes(body []byte) Reply  { return Reply{OK: true, Body: body} }
func errReply(msg string) Reply  { return Reply{OK: false, Body: []byte(msg)} }

func (b *Broker) handleCreate(name string) Reply {
	if err := b.store.Create(name); err != nil {
		return errReply(wire.ErrCannotCreate(name))
	}
	return ok(wire.MsgCreated(name))
}

func (b *Broker) handleUse(connID, name string) Reply {
	if !b.store.Exists(name) {
		return errReply(wire.ErrNoDBNamed(name))
	}
	if err := b.store.Use(connID, name); err != nil {
		return errReply(err.Error())
	}
	return ok(wire.MsgSwitchedTo(name))
}

func (b *Broker) handleExists(name string) Reply {
	if !b.store.Exists(name) {
		return errReply(wire.ErrNoDBNamed(name))
	}
	return ok("")
}

func (b *Broker) handleSubscribe(connID, name string) Reply {
	b.store.Subscribe(name, connID)
	return ok(wire.MsgSubscribed(name))
}

// currentBook resolves cmd.Name, falling back to connID's current book when
// cmd.Name is empty (no INTO clause).
func (b *Broker) currentBook(connID, name string) string {
	if name != "" {
		return name
	}
	conn, ok := b.store.Connection(connID)
	if !ok {
		return ""
	}
	return conn.CurrentBook
}

func (b *Broker) handleInsert(connID string, cmd wire.Command) Reply {
	target := b.currentBook(connID, cmd.Name)
	if !b.store.Exists(target) {
		return errReply(wire.ErrDBNotFound(target))
	}
	if err := b.store.Insert(target, cmd.Update); err != nil {
		return errReply(err.Error())
	}
	return ok("")
}

func (b *Broker) handleCount(connID string, cmd wire.Command) Reply {
	if cmd.All {
		if cmd.InMem {
			return ok(formatUint(b.store.CountAllInMem()))
		}
		return ok(formatUint(b.store.CountAll()))
	}
	name := b.currentBook(connID, "")
	book, exists := b.store.Book(name)
	if !exists {
		return errReply(wire.ErrNoDBNamed(name))
	}
	if cmd.InMem {
		return ok(formatInt(book.InMemoryCount()))
	}
	return ok(formatUint(book.NominalCount()))
}

func (b *Broker) handleClear(connID string, cmd wire.Command) Reply {
	if cmd.All {
		b.store.ClearAll()
		return ok("")
	}
	name := b.currentBook(connID, "")
	book, exists := b.store.Book(name)
	if !exists {
		return errReply(wire.ErrNoDBNamed(name))
	}
	if err := book.Clear(); err != nil {
		return errReply(err.Error())
	}
	return ok("")
}

func (b *Broker) handleFlush(connID string, cmd wire.Command) Reply {
	if cmd.All {
		b.store.FlushAll()
		return ok("")
	}
	name := b.currentBook(connID, "")
	book, exists := b.store.Book(name)
	if !exists {
		return errReply(wire.ErrNoDBNamed(name))
	}
	if err := book.Flush(); err != nil {
		return errReply(err.Error())
	}
	return ok("")
}

func (b *Broker) handleGet(connID string, cmd wire.Command) Reply {
	name := b.currentBook(connID, "")
	book, exists := b.store.Book(name)
	if !exists {
		return errReply(wire.ErrNoDBNamed(name))
	}

	format, err := query.ParseFormat(cmd.Format)
	if err != nil {
		return errReply(err.Error())
	}

	out, err := query.Execute(book, b.store.Dir(), query.Request{
		All:      cmd.All,
		Count:    cmd.Count,
		HasRange: cmd.HasRange,
		MinTs:    cmd.FromTs,
		MaxTs:    cmd.ToTs,
		InMem:    cmd.InMem,
		Format:   format,
	})
	if err != nil {
		return errReply(err.Error())
	}
	return okBytes(out)
}

// --- INFO / PERF bodies ---

type infoMeta struct {
	Clis                int    `json:"clis"`
	Subs                int    `json:"subs"`
	Ts                  int64  `json:"ts"`
	AutoflushEnabled    bool   `json:"autoflush_enabled"`
	AutoflushInterval   int    `json:"autoflush_interval"`
	DTFFolder           string `json:"dtf_folder"`
	TotalInMemoryCount  uint64 `json:"total_in_memory_count"`
	TotalCount          uint64 `json:"total_count"`
}

type infoDB struct {
	Name     string `json:"name"`
	InMemory bool   `json:"in_memory"`
	Count    uint64 `json:"count"`
}

type infoBody struct {
	Meta infoMeta `json:"meta"`
	DBs  []infoDB `json:"dbs"`
}

func (b *Broker) infoJSON() string {
	names := b.store.Names()
	dbs := make([]infoDB, 0, len(names))
	for _, name := range names {
		book, ok := b.store.Book(name)
		if !ok {
			continue
		}
		dbs = append(dbs, infoDB{Name: name, InMemory: book.InMemory(), Count: book.NominalCount()})
	}

	body := infoBody{
		Meta: infoMeta{
			Clis:               b.store.ConnectionCount(),
			Subs:               b.store.SubscriberCount(),
			Ts:                 time.Now().Unix(),
			AutoflushEnabled:   b.store.Autoflush(),
			AutoflushInterval:  b.store.FlushInterval(),
			DTFFolder:          b.store.Dir(),
			TotalInMemoryCount: b.store.CountAllInMem(),
			TotalCount:         b.store.CountAll(),
		},
		DBs: dbs,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (b *Broker) perfJSON() string {
	data, err := json.Marshal(b.sampler.Snapshot())
	if err != nil {
		return "[]"
	}
	return string(data)
}

func formatUint(n uint64) string { return strconv.FormatUint(n, 10) }
func formatInt(n int) string     { return strconv.Itoa(n) }
