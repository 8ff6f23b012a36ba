package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeObject(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNormalizeRow_FoldsSGPAColumns(t *testing.T) {
	row := decodeObject(t, `{"Seat_No": "2524001", "Name": "aaron costa", "SGPA_II": "7.10", "SGPA_I": 6.85, "Subjects": []}`)

	out, _ := normalizeRow(row, nil)
	assert.Equal(t, []any{6.85, 7.1}, out["SGPA"])
	assert.Equal(t, "AARON COSTA", out["Name"])
	_, hasColumn := out["SGPA_I"]
	assert.False(t, hasColumn)
}

func TestNormalizeRow_CoercesAndDropsPlaceholders(t *testing.T) {
	row := decodeObject(t, `{
		"Seat No": 2524002,
		"Name of Candidate": " priya desai ",
		"Grand_Total": "425",
		"CGPA": "--",
		"Remark": "-",
		"Confidence": 0.9,
		"Subjects": [
			{"Name": "SHM-133 Physics", "Total": "60", "Grade": "A", "GP": "8"},
			{"Name": "", "Total": 10},
			"garbage"
		]
	}`)

	out, dropped := normalizeRow(row, nil)
	assert.Equal(t, "2524002", out["Seat_No"])
	assert.Equal(t, "PRIYA DESAI", out["Name"])
	assert.Equal(t, float64(425), out["Grand_Total"])
	assert.NotContains(t, out, "CGPA")
	assert.NotContains(t, out, "Remark")
	assert.NotContains(t, out, "Confidence")
	assert.Equal(t, []any{
		map[string]any{"Name": "SHM-133 Physics", "Total": float64(60), "Grade": "A", "GP": float64(8)},
	}, out["Subjects"])
	assert.Contains(t, dropped, "CGPA")
	assert.Contains(t, dropped, "Subjects[1]")
	assert.Contains(t, dropped, "Subjects[2]")
}

func TestNormalizeRow_SubjectsNeverMissing(t *testing.T) {
	out, _ := normalizeRow(decodeObject(t, `{"Seat_No": "1", "Name": "X"}`), nil)
	assert.Equal(t, []any{}, out["Subjects"])

	out, _ = normalizeRow(decodeObject(t, `{"Seat_No": "1", "Name": "X", "Subjects": null}`), nil)
	assert.Equal(t, []any{}, out["Subjects"])
}

func TestNormalizeRow_ExactKeyWinsOverAlias(t *testing.T) {
	row := decodeObject(t, `{"Seat_No": "1", "Name": "REAL NAME", "name of candidate": "ALIAS", "Subjects": []}`)
	for i := 0; i < 20; i++ {
		out, _ := normalizeRow(row, nil)
		assert.Equal(t, "REAL NAME", out["Name"])
	}
}

func TestColumnIndex(t *testing.T) {
	cases := map[string]int{"I": 1, "ii": 2, "IV": 4, "vi": 6, "IX": 9, "3": 3}
	for in, want := range cases {
		got, ok := columnIndex(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := columnIndex("q")
	assert.False(t, ok)
}
