package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ReadCSV reads a frame from CSV with a header row.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv: missing header row")
		}
		return nil, fmt.Errorf("csv: failed to read header: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		rows = append(rows, row)
	}

	return FromRecords(header, rows)
}

// ReadJSON reads a frame from either an array of row objects or an object of
// column arrays. Row objects may omit keys; missing cells are empty.
func ReadJSON(r io.Reader) (*Frame, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		return fromRowObjects(v)
	case map[string]any:
		return fromColumnArrays(v)
	default:
		return nil, fmt.Errorf("json: expected array of rows or object of columns, got %T", raw)
	}
}

func fromRowObjects(rows []any) (*Frame, error) {
	var header []string
	seen := make(map[string]bool)
	objects := make([]map[string]any, 0, len(rows))

	for i, raw := range rows {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("json: row %d is not an object", i)
		}
		// Key order inside a JSON object is not preserved by encoding/json,
		// so new keys are added in sorted order per row.
		keys := make([]string, 0, len(obj))
		for k := range obj {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			header = append(header, k)
		}
		objects = append(objects, obj)
	}

	records := make([][]string, len(objects))
	for i, obj := range objects {
		row := make([]string, len(header))
		for c, name := range header {
			row[c] = cellString(obj[name])
		}
		records[i] = row
	}
	return FromRecords(header, records)
}

func fromColumnArrays(cols map[string]any) (*Frame, error) {
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)

	series := make([]*Series, 0, len(names))
	for _, name := range names {
		arr, ok := cols[name].([]any)
		if !ok {
			return nil, fmt.Errorf("json: column %q is not an array", name)
		}
		values := make([]string, len(arr))
		for i, v := range arr {
			values[i] = cellString(v)
		}
		series = append(series, &Series{Name: name, values: values})
	}
	return New(series...)
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// LoadFile reads a .csv or .json file into a frame.
func LoadFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".json":
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", path)
	}
}
