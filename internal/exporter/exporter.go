// Package exporter flattens decoded esedb records into the common
// interchange formats a forensic analyst reaches for: CSV, JSON, XML,
// and gob, for use by the cmd/ inspection tools.
package exporter

import (
	"encoding/csv"
	"encoding/gob"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fox-it/go-esedb"
)

func init() {
	// Register the concrete types that show up inside a Record's
	// map[string]any values (used as interface{}) so gob can round-trip
	// them without the caller registering anything itself.
	gob.Register(time.Time{})
	gob.Register([]any{})
}

// Options controls exporter behavior.
type Options struct {
	PrettyJSON   bool
	CSVNoHeader  bool
	CSVDelimiter rune
}

func valueToString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		return string(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = valueToString(e)
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(t)
	}
}

// rowsOf decodes every record of t, in key order, as a name-ordered
// slice of values matching t.ColumnNames().
func rowsOf(t *esedb.Table) ([]string, [][]any, error) {
	cols := t.ColumnNames()
	var rows [][]any
	err := t.Records(func(r *esedb.Record) bool {
		row := make([]any, len(cols))
		for i, name := range cols {
			row[i], _ = r.Get(name)
		}
		rows = append(rows, row)
		return true
	})
	return cols, rows, err
}

// ExportCSV writes every record of t as CSV to w, column order matching
// t.ColumnNames().
func ExportCSV(w io.Writer, t *esedb.Table, opts Options) error {
	cols, rows, err := rowsOf(t)
	if err != nil {
		return err
	}
	csvw := csv.NewWriter(w)
	if opts.CSVDelimiter != 0 {
		csvw.Comma = opts.CSVDelimiter
	}
	if !opts.CSVNoHeader {
		if err := csvw.Write(cols); err != nil {
			return err
		}
	}
	for _, r := range rows {
		row := make([]string, len(cols))
		for i, v := range r {
			row[i] = valueToString(v)
		}
		if err := csvw.Write(row); err != nil {
			return err
		}
	}
	csvw.Flush()
	return csvw.Error()
}

// ExportJSON writes every record of t as a JSON array of objects.
func ExportJSON(w io.Writer, t *esedb.Table, opts Options) error {
	cols, rows, err := rowsOf(t)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if opts.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			m[c] = r[j]
		}
		out[i] = m
	}
	return enc.Encode(out)
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlRow struct {
	Fields []xmlField `xml:",any"`
}

type xmlRows struct {
	XMLName xml.Name `xml:"rows"`
	Rows    []xmlRow `xml:"row"`
}

// ExportXML writes every record of t as simple XML:
// <rows><row><col>value</col>...</row>...</rows>.
func ExportXML(w io.Writer, t *esedb.Table) error {
	cols, rows, err := rowsOf(t)
	if err != nil {
		return err
	}
	xr := xmlRows{XMLName: xml.Name{Local: "rows"}, Rows: make([]xmlRow, 0, len(rows))}
	for _, r := range rows {
		xrRow := xmlRow{Fields: make([]xmlField, 0, len(cols))}
		for i, c := range cols {
			xrRow.Fields = append(xrRow.Fields, xmlField{XMLName: xml.Name{Local: sanitizeXMLName(c)}, Value: valueToString(r[i])})
		}
		xr.Rows = append(xr.Rows, xrRow)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(xr); err != nil {
		return err
	}
	return enc.Flush()
}

// sanitizeXMLName replaces characters XML element names can't carry
// (ESE column names may contain them, e.g. SRU's GUID-named tables)
// with an underscore.
func sanitizeXMLName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

// ExportGOB encodes every record of t using gob to w.
func ExportGOB(w io.Writer, t *esedb.Table) error {
	cols, rows, err := rowsOf(t)
	if err != nil {
		return err
	}
	wrapper := struct {
		Cols []string
		Rows []map[string]any
	}{
		Cols: cols,
		Rows: make([]map[string]any, len(rows)),
	}
	for i, r := range rows {
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			m[c] = r[j]
		}
		wrapper.Rows[i] = m
	}
	return gob.NewEncoder(w).Encode(wrapper)
}
