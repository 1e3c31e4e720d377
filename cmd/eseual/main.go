// Command eseual extracts User Access Logging (UAL) records from a
// Current.mdb/Ualapi.dat database, the Go equivalent of tools/ual.py.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fox-it/go-esedb"
	"github.com/fox-it/go-esedb/internal/winforensic"
)

// skipTables mirrors ual.py's SKIP_TABLES.
var skipTables = map[string]bool{
	"MSysObjects":       true,
	"MSysObjectsShadow": true,
	"MSysObjids":        true,
	"MSysLocales":       true,
}

// winDateTimeFields mirrors UalParser.WIN_DATETIME_FIELDS: the columns
// that carry a FILETIME rather than any other 64-bit quantity.
var winDateTimeFields = map[string]bool{
	"CreationTime": true,
	"FirstSeen":    true,
	"InsertDate":   true,
	"LastAccess":   true,
	"LastSeen":     true,
}

func main() {
	tableName := flag.String("table", "", "only emit records from this table (default: every non-system table)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "eseual: extract User Access Logging records from an ESE database\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [-table name] <Current.mdb>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "eseual:", err)
		os.Exit(1)
	}
	defer f.Close()

	db, err := esedb.Open(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "eseual: open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var tables []*esedb.Table
	if *tableName != "" {
		tbl, err := db.Table(*tableName)
		if err != nil {
			fmt.Fprintln(os.Stderr, "eseual:", err)
			os.Exit(1)
		}
		tables = []*esedb.Table{tbl}
	} else {
		for _, tbl := range db.Tables() {
			if !skipTables[tbl.Name] {
				tables = append(tables, tbl)
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	for _, tbl := range tables {
		if err := tbl.Records(func(r *esedb.Record) bool {
			enc.Encode(recordToUalEntry(tbl, r))
			return true
		}); err != nil {
			fmt.Fprintln(os.Stderr, "eseual:", err)
			os.Exit(1)
		}
	}
}

// recordToUalEntry applies UalParser.get_table_records's per-column
// transforms: FILETIME decode for the known datetime columns, IP
// rendering for 4/16-byte Address columns, and collapsing every DayN
// column into a single activity_counts map keyed by calendar date
// (anchored on LastAccess's year, mirroring convert_day_num_to_date).
func recordToUalEntry(tbl *esedb.Table, r *esedb.Record) map[string]any {
	out := make(map[string]any)
	dayCounts := make(map[int]any)
	var lastAccessYear int

	for _, name := range tbl.ColumnNames() {
		v, _ := r.Get(name)

		if winDateTimeFields[name] {
			if raw, ok := v.(int64); ok {
				v = winforensic.FileTimeToTime(raw)
			}
		}
		if name == "LastAccess" {
			if t, ok := v.(time.Time); ok && !t.IsZero() {
				lastAccessYear = t.Year()
			}
		}
		if name == "Address" {
			if b, ok := v.([]byte); ok && (len(b) == 4 || len(b) == 16) {
				v = net.IP(b).String()
			}
		}

		if strings.HasPrefix(name, "Day") {
			if n, err := strconv.Atoi(name[3:]); err == nil {
				dayCounts[n] = v
			}
			continue
		}
		out[name] = v
	}

	if len(dayCounts) > 0 {
		activity := make(map[string]any)
		if lastAccessYear != 0 {
			for day, count := range dayCounts {
				if isZeroish(count) {
					continue
				}
				date := time.Date(lastAccessYear, time.January, 1, 0, 0, 0, 0, time.UTC).
					AddDate(0, 0, day-1)
				activity[date.Format("2006-01-02")] = count
			}
		}
		out["activity_counts"] = activity
	}
	return out
}

func isZeroish(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case int32:
		return n == 0
	case int64:
		return n == 0
	case uint32:
		return n == 0
	default:
		return false
	}
}
