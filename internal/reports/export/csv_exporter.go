package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVExporter writes tabular ledger data as CSV
type CSVExporter struct {
	writer  *csv.Writer
	options CSVOptions
}

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter       rune   `json:"delimiter"`
	IncludeHeader   bool   `json:"include_header"`
	TimestampFormat string `json:"timestamp_format"`
	NullValue       string `json:"null_value"`
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:       ',',
		IncludeHeader:   true,
		TimestampFormat: time.RFC3339,
		NullValue:       "",
	}
}

// NewCSVExporter creates a new CSV exporter
func NewCSVExporter(w io.Writer, options CSVOptions) *CSVExporter {
	writer := csv.NewWriter(w)
	writer.Comma = options.Delimiter
	return &CSVExporter{writer: writer, options: options}
}

// Export writes the header and all rows, then flushes
func (e *CSVExporter) Export(columns []string, rows []map[string]interface{}) error {
	if e.options.IncludeHeader {
		if err := e.writer.Write(columns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = e.formatValue(row[col])
		}
		if err := e.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	e.writer.Flush()
	return e.writer.Error()
}

func (e *CSVExporter) formatValue(val interface{}) string {
	if val == nil {
		return e.options.NullValue
	}

	switch v := val.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case *float64:
		if v == nil {
			return e.options.NullValue
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return e.options.NullValue
		}
		return v.Format(e.options.TimestampFormat)
	case *time.Time:
		if v == nil || v.IsZero() {
			return e.options.NullValue
		}
		return v.Format(e.options.TimestampFormat)
	default:
		return fmt.Sprintf("%v", v)
	}
}
