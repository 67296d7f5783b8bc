package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/nao1215/siteaudit/internal/model"
)

// CSVWriter outputs one row per issue under a fixed header.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

var csvHeader = []string{"Type", "Location", "Message", "Severity", "Line", "Column"}

// Write implements Writer. Unknown lines and columns are empty cells.
func (w *CSVWriter) Write(report *model.Report) error {
	cw := csv.NewWriter(w.output)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, issue := range report.Issues {
		row := []string{
			issue.Type,
			issue.Location,
			issue.Message,
			issue.Severity.String(),
			optionalInt(issue.Line),
			optionalInt(issue.Column),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalInt(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
