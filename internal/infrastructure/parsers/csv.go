package parsers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Reserved CSV columns. Every other column becomes a string field of data,
// and a column named rel.<edge> holds semicolon separated target ids.
const (
	colType     = "type"
	colUserID   = "user_id"
	colData     = "data"
	relColumn   = "rel."
	idSeparator = ";"
)

// CSVParser parses records from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed records.
// Required column: type. Optional: user_id, data (a JSON object), rel.<edge>.
func (p *CSVParser) Parse(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)

	header, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, header)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	for _, col := range header {
		if col == colType {
			return header, nil
		}
	}
	return nil, fmt.Errorf("missing required column: %s", colType)
}

// readRecords reads all data rows and converts them to RawRecords.
func (p *CSVParser) readRecords(reader *csv.Reader, header []string) ([]RawRecord, error) {
	var records []RawRecord
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		record, err := p.parseRow(row, header, lineNum)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// parseRow converts a CSV row to a RawRecord.
func (p *CSVParser) parseRow(row, header []string, lineNum int) (RawRecord, error) {
	record := RawRecord{Data: map[string]any{}, LineNum: lineNum}

	for i, col := range header {
		if i >= len(row) {
			break
		}
		value := row[i]
		switch {
		case col == colType:
			record.Type = strings.TrimSpace(value)
		case col == colUserID:
			record.UserID = strings.TrimSpace(value)
		case col == colData:
			if strings.TrimSpace(value) == "" {
				continue
			}
			var data map[string]any
			if err := json.Unmarshal([]byte(value), &data); err != nil {
				return RawRecord{}, fmt.Errorf("line %d: invalid data column: %w", lineNum, err)
			}
			for k, v := range data {
				record.Data[k] = v
			}
		case strings.HasPrefix(col, relColumn):
			ids := splitIDs(value)
			if len(ids) == 0 {
				continue
			}
			if record.Relationships == nil {
				record.Relationships = map[string]any{}
			}
			record.Relationships[strings.TrimPrefix(col, relColumn)] = ids
		default:
			if value != "" {
				record.Data[col] = value
			}
		}
	}

	return record, nil
}

func splitIDs(value string) []any {
	var ids []any
	for _, id := range strings.Split(value, idSeparator) {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
