package esedb_test

import (
	"errors"
	"testing"

	"github.com/fox-it/go-esedb"
)

func firstRecord(t *testing.T, tbl *esedb.Table) *esedb.Record {
	t.Helper()
	var first *esedb.Record
	if err := tbl.Records(func(r *esedb.Record) bool {
		first = r
		return false
	}); err != nil {
		t.Fatalf("Records: %v", err)
	}
	if first == nil {
		t.Fatalf("table has no records")
	}
	return first
}

func TestRecordGetAndValue(t *testing.T) {
	tbl := openTestTable(t)
	rec := firstRecord(t, tbl)

	id, err := rec.Get("ID")
	if err != nil {
		t.Fatalf("Get(ID): %v", err)
	}
	if id != int32(1) {
		t.Fatalf("Get(ID): got %v, want 1", id)
	}

	if v := rec.Value("Name"); v != "Alice" {
		t.Fatalf("Value(Name): got %v, want Alice", v)
	}

	if _, err := rec.Get("Bogus"); !errors.Is(err, esedb.ErrUnknownColumn) {
		t.Fatalf("Get(Bogus): got %v, want ErrUnknownColumn", err)
	}
}

func TestRecordValuePanicsOnUnknownColumn(t *testing.T) {
	tbl := openTestTable(t)
	rec := firstRecord(t, tbl)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Value(Bogus) did not panic")
		}
	}()
	rec.Value("Bogus")
}

func TestRecordAsMap(t *testing.T) {
	tbl := openTestTable(t)
	rec := firstRecord(t, tbl)

	m := rec.AsMap()
	if len(m) != 2 {
		t.Fatalf("AsMap: got %d entries, want 2", len(m))
	}
	if m["ID"] != int32(1) || m["Name"] != "Alice" {
		t.Fatalf("AsMap: got %v", m)
	}
}

func TestRecordKeyIsStable(t *testing.T) {
	tbl := openTestTable(t)
	rec := firstRecord(t, tbl)
	if len(rec.Key()) == 0 {
		t.Fatalf("Key: got empty key")
	}
}
