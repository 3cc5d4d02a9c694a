// Package cache memoizes warehouse results behind a key-value store.
package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/devrev/bqsync/internal/model"
)

// Args are the arguments of a memoized call.
// Positional order is part of the key; keyword order is not.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Positional builds Args from positional values
func Positional(values ...any) Args {
	return Args{Positional: values}
}

// With returns a copy of a with the keyword argument set
func (a Args) With(name string, value any) Args {
	kw := make(map[string]any, len(a.Keyword)+1)
	for k, v := range a.Keyword {
		kw[k] = v
	}
	kw[name] = value
	return Args{Positional: a.Positional, Keyword: kw}
}

// DeriveKey returns op:positional:keyword where keyword pairs are sorted by name.
// When content is true, tables are fingerprinted on their rows as well as their shape.
func DeriveKey(op string, args Args, content bool) string {
	positional := make([]string, len(args.Positional))
	for i, v := range args.Positional {
		positional[i] = canonicalize(v, content)
	}

	names := make([]string, 0, len(args.Keyword))
	for name := range args.Keyword {
		names = append(names, name)
	}
	sort.Strings(names)

	keyword := make([]string, len(names))
	for i, name := range names {
		keyword[i] = name + "=" + canonicalize(args.Keyword[name], content)
	}

	return op + ":" + strings.Join(positional, ",") + ":" + strings.Join(keyword, ",")
}

func canonicalize(v any, content bool) string {
	if t, ok := v.(*model.Table); ok {
		return "table(" + Fingerprint(t, content) + ")"
	}
	if v == nil {
		return fmt.Sprint(v)
	}

	rv := reflect.ValueOf(v)
	kind := rv.Kind()
	if kind == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		kind = reflect.Struct
	}

	switch kind {
	case reflect.Struct:
		if s, ok := sortedJSON(v); ok {
			return s
		}
		return fmt.Sprint(v)
	case reflect.Slice, reflect.Array, reflect.Map:
		data, err := json.Marshal(fmt.Sprint(v))
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

// sortedJSON encodes a record through a generic map so keys come out sorted
func sortedJSON(v any) (string, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		// not an object, e.g. time.Time
		return string(data), true
	}
	data, err = json.Marshal(fields)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Fingerprint hashes the table shape and column names, and rows when content is set
func Fingerprint(t *model.Table, content bool) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%d,%d", t.NumRows(), t.NumColumns())
	for _, name := range t.ColumnNames() {
		h.WriteString("\x00")
		h.WriteString(name)
	}
	if content && t != nil {
		for _, row := range t.Rows {
			data, err := json.Marshal(row)
			if err != nil {
				data = []byte(fmt.Sprint(row))
			}
			h.WriteString("\x01")
			h.Write(data)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
