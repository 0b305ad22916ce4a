package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dtfdb/dtfd/internal/record"
)

// ParseCSV parses the six-field CSV form of an Update:
// "ts, seq, is_trade, is_bid, price, size" where ts is a decimal number of
// seconds (fractional part is millisecond precision) and the two flag
// fields are the literal characters "t" or "f". Whitespace around
// separators is ignored.
func ParseCSV(csv string) (record.Update, error) {
	fields := strings.Split(csv, ",")
	if len(fields) != 6 {
		return record.Update{}, fmt.Errorf("wire: csv record needs 6 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	tsSeconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return record.Update{}, fmt.Errorf("wire: invalid ts field %q", fields[0])
	}
	seq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return record.Update{}, fmt.Errorf("wire: invalid seq field %q", fields[1])
	}
	isTrade, err := parseCSVFlag(fields[2])
	if err != nil {
		return record.Update{}, err
	}
	isBid, err := parseCSVFlag(fields[3])
	if err != nil {
		return record.Update{}, err
	}
	price, err := strconv.ParseFloat(fields[4], 32)
	if err != nil {
		return record.Update{}, fmt.Errorf("wire: invalid price field %q", fields[4])
	}
	size, err := strconv.ParseFloat(fields[5], 32)
	if err != nil {
		return record.Update{}, fmt.Errorf("wire: invalid size field %q", fields[5])
	}

	return record.Update{
		Ts:      uint64(math.Round(tsSeconds * 1000)),
		Seq:     uint32(seq),
		IsTrade: isTrade,
		IsBid:   isBid,
		Price:   float32(price),
		Size:    float32(size),
	}, nil
}

func parseCSVFlag(s string) (bool, error) {
	switch s {
	case "t":
		return true, nil
	case "f":
		return false, nil
	default:
		return false, fmt.Errorf("wire: invalid flag field %q, want t or f", s)
	}
}

// FormatCSV renders u in the same six-field CSV shape ParseCSV accepts,
// terminated with a semicolon. GET ... AS CSV output does not use it: that
// is rendered by internal/query with integer seconds.
func FormatCSV(u record.Update) string {
	flag := func(b bool) string {
		if b {
			return "t"
		}
		return "f"
	}
	return fmt.Sprintf("%d.%03d,%d,%s,%s,%s,%s;",
		u.Ts/1000, u.Ts%1000, u.Seq,
		flag(u.IsTrade), flag(u.IsBid),
		strconv.FormatFloat(float64(u.Price), 'f', -1, 32),
		strconv.FormatFloat(float64(u.Size), 'f', -1, 32),
	)
}
