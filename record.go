package esedb

import (
	"fmt"

	"github.com/fox-it/go-esedb/internal/pager"
)

// Record is the decoded contents of one leaf-node payload on a table
// tree: every column's typed value, keyed by name. Column types are
// represented as plain Go values (nil, bool, uint8, int16, uint16,
// int32, uint32, int64, float32, float64, string, []byte, string-form
// GUID, or []any for multi-valued tagged columns) — see
// internal/pager.DecodeValue for the full mapping (spec's design note
// on tagged unions).
type Record struct {
	table  *Table
	key    []byte
	values map[uint32]any
}

func decodeRecord(table *Table, node *pager.Node, impacketCompat bool) (*Record, error) {
	resolveLV := func(token []byte) ([]byte, error) {
		store, err := table.longValueStore()
		if err != nil {
			return nil, err
		}
		return store.Resolve(token)
	}

	values, err := pager.Decode(defsOf(table.Columns), node.Data, table.db.pager.SmallPages(), resolveLV, impacketCompat)
	if err != nil {
		return nil, fmt.Errorf("esedb: table %q: decode record: %w", table.Name, err)
	}
	return &Record{table: table, key: node.Key, values: values}, nil
}

// Get returns the value of the named column, or an error if the table
// has no such column.
func (r *Record) Get(column string) (any, error) {
	col, err := r.table.Column(column)
	if err != nil {
		return nil, err
	}
	return r.values[col.ID()], nil
}

// Value is an alias for Get that panics on an unknown column name,
// matching the ergonomics of index-style access (Record[column] in the
// source) without requiring operator overloading.
func (r *Record) Value(column string) any {
	v, err := r.Get(column)
	if err != nil {
		panic(err)
	}
	return v
}

// AsMap returns every column's decoded value keyed by column name.
func (r *Record) AsMap() map[string]any {
	out := make(map[string]any, len(r.table.Columns))
	for _, col := range r.table.Columns {
		out[col.Name()] = r.values[col.ID()]
	}
	return out
}

// Key returns the record's underlying B+Tree key bytes. Record itself
// defines no equality or ordering method.
func (r *Record) Key() []byte { return r.key }
