package vectorstore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// MetaString reads a string metadata value.
func MetaString(meta map[string]any, key string) (string, bool) {
	v, ok := meta[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return fmt.Sprint(s), true
	}
}

// MetaInt reads an integer metadata value. Stores differ in how numbers come
// back (int64 from Qdrant, float64 from JSON), so every numeric form is accepted.
func MetaInt(meta map[string]any, key string) (int, bool) {
	switch n := meta[key].(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), float64(n) == math.Trunc(float64(n))
	case float64:
		return int(n), n == math.Trunc(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
