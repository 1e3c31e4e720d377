package esedb_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fox-it/go-esedb"
	"github.com/fox-it/go-esedb/internal/fixture"
)

func openTestTable(t *testing.T) *esedb.Table {
	t.Helper()
	db := openFixture(t)
	tbl, err := db.Table("TestTable")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	return tbl
}

func TestTableColumns(t *testing.T) {
	tbl := openTestTable(t)
	names := tbl.ColumnNames()
	if len(names) != 2 || names[0] != "ID" || names[1] != "Name" {
		t.Fatalf("ColumnNames: got %v, want [ID Name]", names)
	}

	id, err := tbl.Column("ID")
	if err != nil {
		t.Fatalf("Column(ID): %v", err)
	}
	if !id.IsFixed() || id.ID() != fixture.ColID {
		t.Fatalf("ID column: fixed=%v id=%d", id.IsFixed(), id.ID())
	}

	name, err := tbl.Column("Name")
	if err != nil {
		t.Fatalf("Column(Name): %v", err)
	}
	if !name.IsVariable() || !name.IsText() {
		t.Fatalf("Name column: variable=%v text=%v", name.IsVariable(), name.IsText())
	}

	if _, err := tbl.Column("Bogus"); !errors.Is(err, esedb.ErrUnknownColumn) {
		t.Fatalf("Column(Bogus): got %v, want ErrUnknownColumn", err)
	}
}

func TestTablePrimaryIndexAndFindIndex(t *testing.T) {
	tbl := openTestTable(t)
	idx := tbl.PrimaryIndex()
	if idx == nil {
		t.Fatalf("PrimaryIndex: got nil")
	}
	if idx.Name != "PrimaryIndex" {
		t.Fatalf("PrimaryIndex.Name: got %q", idx.Name)
	}
	if !idx.IsPrimary() {
		t.Fatalf("IsPrimary: got false")
	}

	found := tbl.FindIndex([]string{"ID"})
	if found == nil || found.Name != "PrimaryIndex" {
		t.Fatalf("FindIndex([ID]): got %v", found)
	}
	if got := tbl.FindIndex([]string{"Name"}); got != nil {
		t.Fatalf("FindIndex([Name]): got %v, want nil", got)
	}
}

func TestTableRecordsInKeyOrder(t *testing.T) {
	tbl := openTestTable(t)
	var names []string
	if err := tbl.Records(func(r *esedb.Record) bool {
		name, _ := r.Get("Name")
		names = append(names, name.(string))
		return true
	}); err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Fatalf("Records order: got %v, want [Alice Bob]", names)
	}
}

func TestTableRecordsEarlyStop(t *testing.T) {
	tbl := openTestTable(t)
	count := 0
	if err := tbl.Records(func(r *esedb.Record) bool {
		count++
		return false
	}); err != nil {
		t.Fatalf("Records: %v", err)
	}
	if count != 1 {
		t.Fatalf("Records early stop: visited %d, want 1", count)
	}
}

func TestTableSearchByPrimaryIndex(t *testing.T) {
	tbl := openTestTable(t)
	rec, err := tbl.Search(map[string]any{"ID": int32(2)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	name, _ := rec.Get("Name")
	if name != "Bob" {
		t.Fatalf("Search(ID=2).Name: got %v, want Bob", name)
	}
}

func TestTableCursor(t *testing.T) {
	tbl := openTestTable(t)
	cur, err := tbl.Cursor()
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	n, err := cur.Node()
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if len(n.Key) == 0 {
		t.Fatalf("Cursor's first node has empty key")
	}
}

func TestOpenTwoIndependentDBs(t *testing.T) {
	db1, err := esedb.Open(bytes.NewReader(fixture.Build()))
	if err != nil {
		t.Fatalf("Open db1: %v", err)
	}
	defer db1.Close()
	db2, err := esedb.Open(bytes.NewReader(fixture.Build()))
	if err != nil {
		t.Fatalf("Open db2: %v", err)
	}
	defer db2.Close()

	t1, _ := db1.Table("TestTable")
	t2, _ := db2.Table("TestTable")
	r1, err := t1.Search(map[string]any{"ID": int32(1)})
	if err != nil {
		t.Fatalf("Search db1: %v", err)
	}
	r2, err := t2.Search(map[string]any{"ID": int32(1)})
	if err != nil {
		t.Fatalf("Search db2: %v", err)
	}
	n1, _ := r1.Get("Name")
	n2, _ := r2.Get("Name")
	if n1 != n2 {
		t.Fatalf("independent DBs disagree: %v vs %v", n1, n2)
	}
}
