package export

import "fmt"

// Format identifies a supported export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Table is the tabular content handed to an exporter.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Exporter renders a table into a downloadable document.
type Exporter interface {
	Render(Table) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat returns the exporter registered for format.
func ForFormat(format Format) (Exporter, error) {
	switch format {
	case FormatCSV, "":
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func validate(table Table) error {
	if len(table.Headers) == 0 {
		return fmt.Errorf("export requires at least one header")
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(table.Headers))
		}
	}
	return nil
}
