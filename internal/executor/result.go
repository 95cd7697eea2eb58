package executor

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PostgreSQL type OIDs the executor reports for result columns
const (
	OIDBool    uint32 = 16
	OIDInt8    uint32 = 20
	OIDText    uint32 = 25
	OIDJSON    uint32 = 114
	OIDFloat8  uint32 = 701
	OIDUnknown uint32 = 705
)

// Result is the outcome of one statement
type Result struct {
	Columns []string
	OIDs    []uint32
	Rows    [][]any

	RowsAffected int64
	// Tag is the PostgreSQL command tag, e.g. "SELECT 2" or "INSERT 0 1"
	Tag string
	// Empty is set for a query string with no statement in it
	Empty bool
}

// HasRows reports whether the statement produces a row description
func (r *Result) HasRows() bool {
	return r.Columns != nil
}

func newRowsResult(cols []string, rows [][]any, tag string) *Result {
	if cols == nil {
		cols = []string{}
	}
	return &Result{
		Columns:      cols,
		OIDs:         columnOIDs(len(cols), rows),
		Rows:         rows,
		RowsAffected: int64(len(rows)),
		Tag:          tag,
	}
}

// columnOIDs picks one type per column; mixed kinds fall back to text
func columnOIDs(n int, rows [][]any) []uint32 {
	oids := make([]uint32, n)
	for i := range oids {
		var oid uint32
		for _, row := range rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			v := oidOf(row[i])
			if oid == 0 {
				oid = v
			} else if oid != v {
				oid = OIDText
				break
			}
		}
		if oid == 0 {
			oid = OIDText
		}
		oids[i] = oid
	}
	return oids
}

func oidOf(v any) uint32 {
	switch v.(type) {
	case bool:
		return OIDBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return OIDInt8
	case float32, float64:
		return OIDFloat8
	case string:
		return OIDText
	case map[string]any, []any:
		return OIDJSON
	}
	return OIDText
}

// EncodeText renders v in the PostgreSQL text format for a column of type
// oid. NULL encodes as nil.
func EncodeText(v any, oid uint32) []byte {
	if v == nil {
		return nil
	}
	if oid == OIDText {
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	}
	switch x := v.(type) {
	case bool:
		if oid == OIDBool {
			if x {
				return []byte("t")
			}
			return []byte("f")
		}
		return []byte(strconv.FormatBool(x))
	case float64:
		return []byte(strconv.FormatFloat(x, 'g', -1, 64))
	case float32:
		return []byte(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case string:
		return []byte(x)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return []byte(fmt.Sprint(x))
		}
		return data
	}
	return []byte(fmt.Sprint(v))
}
