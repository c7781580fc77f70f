package parsers

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawRecord
	}{
		{
			name:  "single record",
			input: `[{"type": "contact", "data": {"firstName": "Ada"}}]`,
			expected: []RawRecord{
				{Type: "contact", Data: map[string]any{"firstName": "Ada"}, LineNum: 1},
			},
		},
		{
			name:     "empty array",
			input:    "[]",
			expected: []RawRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &JSONParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJSONParser_Parse_AllFields(t *testing.T) {
	input := `[
		{"type": "deal", "data": {"title": "Renewal"}},
		{
			"type": "task",
			"user_id": "u1",
			"data": {"title": "Call back", "estimate": 3},
			"relationships": {"assignedTo": "c1", "watchers": ["c2", "c3"]},
			"metadata": {"source": "crm"}
		}
	]`

	parser := &JSONParser{}
	result, err := parser.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 2)

	record := result[1]
	assert.Equal(t, 2, record.LineNum)
	assert.Equal(t, "task", record.Type)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, "Call back", record.Data["title"])
	assert.Equal(t, json.Number("3"), record.Data["estimate"])
	assert.Equal(t, "c1", record.Relationships["assignedTo"])
	assert.Equal(t, []any{"c2", "c3"}, record.Relationships["watchers"])
	assert.Equal(t, "crm", record.Metadata["source"])
}

func TestJSONParser_Parse_InvalidInput(t *testing.T) {
	parser := &JSONParser{}
	_, err := parser.Parse(strings.NewReader("not json"))
	require.Error(t, err)
}

func TestCSVParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawRecord
	}{
		{
			name:  "columns become data fields",
			input: "type,firstName,email\ncontact,Ada,ada@example.com\n",
			expected: []RawRecord{
				{Type: "contact", Data: map[string]any{"firstName": "Ada", "email": "ada@example.com"}, LineNum: 2},
			},
		},
		{
			name:     "empty CSV (header only)",
			input:    "type,firstName\n",
			expected: nil,
		},
		{
			name:  "empty cells are skipped",
			input: "firstName,type,lastName\nAda,contact,\n",
			expected: []RawRecord{
				{Type: "contact", Data: map[string]any{"firstName": "Ada"}, LineNum: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCSVParser_Parse_ReservedColumns(t *testing.T) {
	input := "type,user_id,data,rel.contacts,stage\n" +
		`deal,u1,"{""title"": ""Renewal"", ""amount"": 10}",c1; c2,open` + "\n"

	parser := &CSVParser{}
	result, err := parser.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 1)

	record := result[0]
	assert.Equal(t, "deal", record.Type)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, "Renewal", record.Data["title"])
	assert.Equal(t, float64(10), record.Data["amount"])
	assert.Equal(t, "open", record.Data["stage"])
	assert.Equal(t, []any{"c1", "c2"}, record.Relationships["contacts"])
}

func TestCSVParser_Parse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{
			name:   "missing required column",
			input:  "firstName,lastName\nAda,Lovelace\n",
			errMsg: "missing required column: type",
		},
		{
			name:   "invalid data column",
			input:  "type,data\ncontact,{not json}\n",
			errMsg: "line 2: invalid data column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			_, err := parser.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestForFormat(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFormat("json"))
	assert.IsType(t, &CSVParser{}, ForFormat("CSV"))
	assert.IsType(t, &NDJSONParser{}, ForFormat("ndjson"))
	assert.IsType(t, &NDJSONParser{}, ForFormat("jsonl"))
	assert.Nil(t, ForFormat("unknown"))
}

func TestForFile(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFile("contacts.json"))
	assert.IsType(t, &CSVParser{}, ForFile("deals.csv"))
	assert.IsType(t, &NDJSONParser{}, ForFile("events.ndjson"))
	assert.IsType(t, &NDJSONParser{}, ForFile("events.JSONL"))
	assert.Nil(t, ForFile("file.txt"))
	assert.Nil(t, ForFile("noextension"))
}

func TestNDJSONParser_Parse(t *testing.T) {
	input := `{"type": "contact", "data": {"firstName": "Ada"}}

{"type": "deal", "user_id": "u-1", "data": {"title": "Renewal", "amount": 12}}
`
	records, err := (&NDJSONParser{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "contact", records[0].Type)
	assert.Equal(t, 1, records[0].LineNum)
	assert.Equal(t, "deal", records[1].Type)
	assert.Equal(t, "u-1", records[1].UserID)
	assert.Equal(t, 3, records[1].LineNum)
	assert.Equal(t, json.Number("12"), records[1].Data["amount"])
}

func TestNDJSONParser_Parse_Empty(t *testing.T) {
	records, err := (&NDJSONParser{}).Parse(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNDJSONParser_Parse_BadLine(t *testing.T) {
	input := "{\"type\": \"contact\"}\n{not json}\n"
	_, err := (&NDJSONParser{}).Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
