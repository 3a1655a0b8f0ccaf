package store

import (
	"fmt"
	"time"

	"github.com/objectledge/coral/internal/ir"
)

// encodeValue converts v to a database/sql parameter. Times are stored as
// RFC 3339 text in UTC, so text order is time order.
func encodeValue(v ir.Value) any {
	return ir.GoValue(v)
}

// decodeValue converts a raw column value read by the sqlite3 driver to
// a Value of kind.
func decodeValue(kind ir.Kind, raw any) (ir.Value, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch kind {
	case ir.KindBool:
		switch x := raw.(type) {
		case int64:
			return ir.Bool(x != 0), nil
		case bool:
			return ir.Bool(x), nil
		}
	case ir.KindTime:
		switch x := raw.(type) {
		case time.Time:
			return ir.NewTime(x), nil
		case string:
			t, err := time.Parse(time.RFC3339, x)
			if err != nil {
				return nil, fmt.Errorf("decode time %q: %w", x, err)
			}
			return ir.NewTime(t), nil
		}
	}
	return ir.FromGo(kind, raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", s, err)
	}
	return t.UTC(), nil
}
