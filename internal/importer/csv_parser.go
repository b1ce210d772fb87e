package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVParser implements Parser for comma separated exports.
type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(fileData []byte) (*Parsed, error) {
	fileData = bytes.TrimPrefix(fileData, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(fileData))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		records = append(records, record)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must contain at least header and one data row")
	}
	return rowsFromRecords(records), nil
}
