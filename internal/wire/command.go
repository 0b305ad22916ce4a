package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/dtfdb/dtfd/internal/record"
)

// Kind identifies which textual or binary command a Command carries.
type Kind int

const (
	KindPing Kind = iota
	KindHelp
	KindInfo
	KindPerf
	KindCreate
	KindUse
	KindExists
	KindSubscribe
	KindInsert
	KindCount
	KindClear
	KindFlush
	KindGet
	KindRawInsert
)

// rawInsertPrefix is the 3-byte ASCII tag that marks a binary insert payload.
var rawInsertPrefix = []byte("raw")

// Command is a parsed request payload, either a textual command or a binary
// raw insert.
type Command struct {
	Kind Kind

	// Name is the target book for CREATE/USE/EXISTS/SUBSCRIBE, the INTO
	// target for Insert/RawInsert (empty means "use the connection's
	// current book").
	Name string

	// Update carries the parsed record for Insert and RawInsert.
	Update record.Update

	// All is set by COUNT ALL / CLEAR ALL / FLUSH ALL / GET ALL.
	All bool
	// InMem is set by a trailing IN MEM clause on COUNT or GET.
	InMem bool
	// Count is the requested record count for GET <N>.
	Count int
	// Format is the AS clause value for GET (JSON, CSV, or DTF); the zero
	// value means the default raw/DTF stream format.
	Format string
	// HasRange is set by a FROM <ts> TO <ts> clause on GET; FromTs/ToTs are
	// already converted from seconds to milliseconds.
	HasRange     bool
	FromTs, ToTs uint64
}

// Parse decodes one request payload into a Command. A payload beginning with
// the literal prefix "raw" is a binary insert; everything else is parsed as
// a textual command.
func Parse(payload []byte) (Command, error) {
	if bytes.HasPrefix(payload, rawInsertPrefix) {
		return parseRawInsert(payload)
	}
	text := strings.TrimSuffix(string(payload), "\n")
	return parseText(text)
}

func parseText(text string) (Command, error) {
	switch {
	case text == "PING":
		return Command{Kind: KindPing}, nil
	case text == "HELP":
		return Command{Kind: KindHelp}, nil
	case text == "INFO":
		return Command{Kind: KindInfo}, nil
	case text == "PERF":
		return Command{Kind: KindPerf}, nil
	case strings.HasPrefix(text, "CREATE "):
		return Command{Kind: KindCreate, Name: strings.TrimSpace(text[len("CREATE "):])}, nil
	case strings.HasPrefix(text, "USE "):
		return Command{Kind: KindUse, Name: strings.TrimSpace(text[len("USE "):])}, nil
	case strings.HasPrefix(text, "EXISTS "):
		return Command{Kind: KindExists, Name: strings.TrimSpace(text[len("EXISTS "):])}, nil
	case strings.HasPrefix(text, "SUBSCRIBE "):
		return Command{Kind: KindSubscribe, Name: strings.TrimSpace(text[len("SUBSCRIBE "):])}, nil
	case strings.HasPrefix(text, "ADD "):
		return parseInsert(text[len("ADD "):])
	case strings.HasPrefix(text, "INSERT "):
		return parseInsert(text[len("INSERT "):])
	case text == "COUNT" || strings.HasPrefix(text, "COUNT "):
		return parseCount(strings.TrimSpace(strings.TrimPrefix(text, "COUNT")))
	case text == "CLEAR" || strings.HasPrefix(text, "CLEAR "):
		return parseAllOnly(KindClear, strings.TrimSpace(strings.TrimPrefix(text, "CLEAR")))
	case text == "FLUSH" || strings.HasPrefix(text, "FLUSH "):
		return parseAllOnly(KindFlush, strings.TrimSpace(strings.TrimPrefix(text, "FLUSH")))
	case text == "GET" || strings.HasPrefix(text, "GET "):
		return parseGet(strings.TrimSpace(strings.TrimPrefix(text, "GET")))
	default:
		return Command{}, fmt.Errorf("wire: %s", ErrUnknownCommand)
	}
}

func parseInsert(rest string) (Command, error) {
	semi := strings.Index(rest, ";")
	if semi < 0 {
		return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
	}
	u, err := ParseCSV(rest[:semi])
	if err != nil {
		return Command{}, fmt.Errorf("wire: %s: %w", ErrUnableToParseLine, err)
	}

	name := ""
	if tail := strings.TrimSpace(rest[semi+1:]); tail != "" {
		if !strings.HasPrefix(tail, "INTO ") {
			return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
		}
		name = strings.TrimSpace(tail[len("INTO "):])
	}
	return Command{Kind: KindInsert, Name: name, Update: u}, nil
}

func parseAllOnly(kind Kind, rest string) (Command, error) {
	switch rest {
	case "":
		return Command{Kind: kind}, nil
	case "ALL":
		return Command{Kind: kind, All: true}, nil
	default:
		return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
	}
}

func parseCount(rest string) (Command, error) {
	cmd := Command{Kind: KindCount}
	tokens := strings.Fields(rest)
	i := 0
	switch {
	case i < len(tokens) && tokens[i] == "ALL":
		cmd.All = true
		i++
	case i < len(tokens):
		// A bare count argument is accepted but inert (spec open question):
		// COUNT <n> and COUNT both report the same value.
		if _, err := strconv.Atoi(tokens[i]); err == nil {
			i++
		}
	}
	if i < len(tokens) && tokens[i] == "IN" {
		if i+1 >= len(tokens) || tokens[i+1] != "MEM" {
			return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
		}
		cmd.InMem = true
		i += 2
	}
	if i != len(tokens) {
		return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
	}
	return cmd, nil
}

func parseGet(rest string) (Command, error) {
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
	}
	cmd := Command{Kind: KindGet}

	i := 0
	if tokens[0] == "ALL" {
		cmd.All = true
		i = 1
	} else {
		n, err := strconv.Atoi(tokens[0])
		if err != nil || n < 0 {
			return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
		}
		cmd.Count = n
		i = 1
	}

	for i < len(tokens) {
		switch tokens[i] {
		case "AS":
			if i+1 >= len(tokens) {
				return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
			}
			cmd.Format = tokens[i+1]
			i += 2
		case "FROM":
			if i+3 >= len(tokens) || tokens[i+2] != "TO" {
				return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
			}
			fromSec, err1 := strconv.ParseUint(tokens[i+1], 10, 64)
			toSec, err2 := strconv.ParseUint(tokens[i+3], 10, 64)
			if err1 != nil || err2 != nil {
				return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
			}
			cmd.HasRange = true
			cmd.FromTs = fromSec * 1000
			cmd.ToTs = toSec * 1000
			i += 4
		case "IN":
			if i+1 >= len(tokens) || tokens[i+1] != "MEM" {
				return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
			}
			cmd.InMem = true
			i += 2
		default:
			return Command{}, fmt.Errorf("wire: %s", ErrBadFormat)
		}
	}
	return cmd, nil
}

// parseRawInsert decodes the binary insert shape: "raw" . 8-byte BE
// name_len . name_len bytes of name . 21-byte raw Update, optionally
// followed by a trailing '\n'.
func parseRawInsert(payload []byte) (Command, error) {
	const headerLen = 3 + 8
	if len(payload) < headerLen {
		return Command{}, fmt.Errorf("wire: raw insert frame too short")
	}
	nameLen := binary.BigEndian.Uint64(payload[3:headerLen])
	start := headerLen
	end := start + int(nameLen)
	if nameLen > uint64(len(payload)) || end > len(payload) {
		return Command{}, fmt.Errorf("wire: raw insert name length exceeds payload")
	}
	name := string(payload[start:end])

	body := bytes.TrimSuffix(payload[end:], []byte("\n"))
	if len(body) < record.RawSize {
		return Command{}, fmt.Errorf("wire: raw insert update too short")
	}
	u, err := record.DecodeRaw(body[:record.RawSize])
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: KindRawInsert, Name: name, Update: u}, nil
}

// EncodeRawInsert builds the binary raw-insert payload for name and u: the
// same wire shape clients use to insert, reused by the server to fan raw
// inserts out to subscribers.
func EncodeRawInsert(name string, u record.Update) []byte {
	nameBytes := []byte(name)
	buf := make([]byte, 0, 3+8+len(nameBytes)+record.RawSize)
	buf = append(buf, rawInsertPrefix...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(nameBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, nameBytes...)
	buf = u.AppendRaw(buf)
	return buf
}
