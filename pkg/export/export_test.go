package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statementDataset() Dataset {
	return Dataset{
		Summary: []Field{{Label: "Student", Value: "S-001"}, {Label: "Balance", Value: "4000.00"}},
		Headers: []string{"Item", "Amount"},
		Rows: []map[string]string{
			{"Item": "Term 1", "Amount": "3000.00"},
			{"Item": "Transport", "Amount": "1000.00"},
		},
		Numeric: map[string]bool{"Amount": true},
	}
}

func TestCSVExporterWritesSummaryThenTable(t *testing.T) {
	out, err := NewCSVExporter().Render(statementDataset())
	require.NoError(t, err)
	text := string(out)
	assert.True(t, strings.HasPrefix(text, "Student,S-001\nBalance,4000.00\n"))
	assert.True(t, strings.HasSuffix(text, "Item,Amount\nTerm 1,3000.00\nTransport,1000.00\n"))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter("School Admin").Render(statementDataset(), "Fee Statement")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", f.ContentType())
	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
