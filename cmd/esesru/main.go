// Command esesru extracts System Resource Usage Monitor (SRUM)
// provider records from a SRUDB.dat database, the Go equivalent of
// tools/sru.py.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fox-it/go-esedb"
	"github.com/fox-it/go-esedb/internal/winforensic"
)

// skipTables mirrors sru.py's SKIP_TABLES: the catalog's own
// system/helper tables, never provider data.
var skipTables = map[string]bool{
	"MSysObjects":          true,
	"MSysObjectsShadow":    true,
	"MSysObjids":           true,
	"MSysLocales":          true,
	"SruDbIdMapTable":      true,
	"SruDbCheckpointTable": true,
}

// nameToGUID mirrors sru.py's NAME_TO_GUID_MAP: the well-known SRUM
// provider table names, each mapped to the GUID-form table name ESE
// actually stores it under.
var nameToGUID = map[string]string{
	"network_data":           "{973F5D5C-1D90-4944-BE8E-24B94231A174}",
	"network_connectivity":   "{DD6636C4-8929-4683-974E-22C046A43763}",
	"energy_estimator":       "{DA73FB89-2BEA-4DDC-86B8-6E048C6DA477}",
	"energy_usage":           "{FEE4E14F-02A9-4550-B5CE-5FA2DA202E37}",
	"energy_usage_lt":        "{FEE4E14F-02A9-4550-B5CE-5FA2DA202E37}LT",
	"application":            "{D10CA2FE-6FCF-4F6D-848E-B2E99266FA89}",
	"push_notifications":     "{D10CA2FE-6FCF-4F6D-848E-B2E99266FA86}",
	"application_timeline":   "{5C8CF1C7-7257-4F13-B223-970EF5939312}",
	"vfu":                    "{7ACBBAA3-D029-4BE4-9A7A-0885927F1D8F}",
	"sdp_volume_provider":    "{17F4D97B-F26A-5E79-3A82-90040A47D13D}",
	"sdp_physical_disk_provider": "{841A7317-3805-518B-C2EA-AD224CB4AF84}",
	"sdp_cpu_provider":       "{DC3D3B50-BB90-5066-FA4E-A5F90DD8B677}",
	"sdp_network_provider":   "{EEE2F477-0659-5C47-EF03-6D6BEFD441B3}",
	"sdp_perf_count_provider": "{38AD6548-9313-58F8-45C7-D293BAFDC879}",
	"sdp_event_log_provider": "{CDF8EBF6-7C0F-5AC2-158F-DBFBEE981152}",
}

// nativeTypeMap mirrors sru.py's NATIVE_TYPE_MAP: per-table columns
// that carry a FILETIME rather than an OLE Automation date.
var nativeTypeMap = map[string]map[string]bool{
	"{DD6636C4-8929-4683-974E-22C046A43763}": {"ConnectStartTime": true},
	"{5C8CF1C7-7257-4F13-B223-970EF5939312}": {"EndTime": true},
}

// sru resolves SruDbIdMapTable lookups and the field-level quirks
// sru.py's Entry._get applies, grounded directly on that file.
type sru struct {
	db    *esedb.DB
	idMap map[int32]*esedb.Record
}

func openSRU(db *esedb.DB) (*sru, error) {
	s := &sru{db: db, idMap: make(map[int32]*esedb.Record)}
	idTable, err := db.Table("SruDbIdMapTable")
	if err != nil {
		return nil, err
	}
	if err := idTable.Records(func(r *esedb.Record) bool {
		v, _ := r.Get("IdIndex")
		if id, ok := v.(int32); ok {
			s.idMap[id] = r
		}
		return true
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sru) resolveID(v any) (string, error) {
	id, ok := v.(int32)
	if !ok {
		return "", fmt.Errorf("esesru: resolve id: unexpected value type %T", v)
	}
	rec, ok := s.idMap[id]
	if !ok {
		return "", fmt.Errorf("esesru: id %d not present in SruDbIdMapTable", id)
	}
	blob, _ := rec.Get("IdBlob")
	if blob == nil {
		return "", nil
	}
	idType, _ := rec.Get("IdType")
	switch asInt(idType) {
	case 0, 1, 2:
		if b, ok := blob.([]byte); ok {
			return utf16leString(b), nil
		}
		return "", nil
	default:
		b, ok := blob.([]byte)
		if !ok {
			return "", nil
		}
		return winforensic.FormatSID(b)
	}
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return -1
	}
}

func utf16leString(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}
	out := make([]rune, 0, len(units))
	for _, u := range units {
		if u == 0 {
			break
		}
		out = append(out, rune(u))
	}
	return string(out)
}

// entry renders one table's record the way sru.py's Entry does:
// resolving AppId/UserId against the id map, converting TimeStamp from
// an OLE Automation date, and applying any per-table native-type
// overrides.
func (s *sru) entry(tableName string, r *esedb.Record) (map[string]any, error) {
	out := make(map[string]any)
	out["_provider"] = tableName

	tbl, err := s.db.Table(tableName)
	if err != nil {
		return nil, err
	}
	for _, name := range tbl.ColumnNames() {
		v, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if v == nil {
			out[name] = nil
			continue
		}

		switch {
		case name == "AppId" || name == "UserId":
			resolved, err := s.resolveID(v)
			if err != nil {
				out[name] = nil
				continue
			}
			v = resolved
		case name == "TimeStamp":
			v = winforensic.OleAutomationDateToTime(v.(int64))
		case nativeTypeMap[tableName][name]:
			v = winforensic.FileTimeToTime(v.(int64))
		}

		if tableName == "{5C8CF1C7-7257-4F13-B223-970EF5939312}" {
			if iv, ok := v.(int64); ok && (iv == 0x2A2A2A2A2A2A2A2A || iv == 0x2A2A2A2A) {
				v = nil
			}
		}
		out[name] = v
	}
	return out, nil
}

func main() {
	provider := flag.String("provider", "", "only emit records from this provider (name or GUID table)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "esesru: extract SRUM provider records from an ESE database\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [-provider name] <SRUDB.dat>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "esesru:", err)
		os.Exit(1)
	}
	defer f.Close()

	db, err := esedb.Open(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "esesru: open:", err)
		os.Exit(1)
	}
	defer db.Close()

	s, err := openSRU(db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "esesru:", err)
		os.Exit(1)
	}

	tableName := ""
	if *provider != "" {
		if guid, ok := nameToGUID[*provider]; ok {
			tableName = guid
		} else {
			tableName = *provider
		}
	}

	enc := json.NewEncoder(os.Stdout)
	emit := func(name string, tbl *esedb.Table) error {
		return tbl.Records(func(r *esedb.Record) bool {
			entry, err := s.entry(name, r)
			if err != nil {
				fmt.Fprintln(os.Stderr, "esesru:", err)
				return true
			}
			enc.Encode(entry)
			return true
		})
	}

	if tableName != "" {
		tbl, err := db.Table(tableName)
		if err != nil {
			fmt.Fprintln(os.Stderr, "esesru:", err)
			os.Exit(1)
		}
		if err := emit(tableName, tbl); err != nil {
			fmt.Fprintln(os.Stderr, "esesru:", err)
			os.Exit(1)
		}
		return
	}

	for _, tbl := range db.Tables() {
		if skipTables[tbl.Name] {
			continue
		}
		if err := emit(tbl.Name, tbl); err != nil {
			fmt.Fprintln(os.Stderr, "esesru:", err)
			os.Exit(1)
		}
	}
}
