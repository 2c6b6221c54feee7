package normalize

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeJSONRows decodes a JSON array of row objects. Numbers stay
// json.Number so amounts are not rounded through float64. Elements that are
// not objects become nil rows and are reported per row by the importer.
func DecodeJSONRows(raw []byte) ([]RawRow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("rows must be a non-empty array")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var elements []interface{}
	if err := decoder.Decode(&elements); err != nil {
		return nil, errors.New("rows must be an array")
	}

	rows := make([]RawRow, len(elements))
	for i, element := range elements {
		if obj, ok := element.(map[string]interface{}); ok {
			rows[i] = RawRow(obj)
		}
	}
	return rows, nil
}

// ParseCSVRows reads a CSV export whose first record is the header. Each
// later record becomes a row keyed by header name; short records leave the
// missing columns out.
func ParseCSVRows(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}

		row := make(RawRow, len(header))
		blank := true
		for i, value := range record {
			if i >= len(header) || header[i] == "" {
				continue
			}
			row[header[i]] = value
			if strings.TrimSpace(value) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}
