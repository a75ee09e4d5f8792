package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

const churnCSV = `customerID,gender,SeniorCitizen,tenure,Contract,Churn
0001,Female,0,1,Month-to-month,Yes
0002,Male,1,34,One year,No
0003,Male,0,2,Month-to-month,Yes
0004,Female,0, ,Two year,No
0005,Male,0,45,One year,
`

func mustReadCSV(t *testing.T) *Table {
	t.Helper()
	tbl, err := ReadCSV(strings.NewReader(churnCSV))
	require.NoError(t, err)
	return tbl
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{"valid", Schema{{"gender", Categorical}, {"tenure", Numeric}}, false},
		{"empty", Schema{}, true},
		{"blank name", Schema{{" ", Categorical}}, true},
		{"duplicate", Schema{{"a", Numeric}, {"a", Categorical}}, true},
		{"bad kind", Schema{{"a", Kind(9)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *errors.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Categorical")
	require.NoError(t, err)
	assert.Equal(t, Categorical, k)

	k, err = ParseKind("numeric")
	require.NoError(t, err)
	assert.Equal(t, Numeric, k)

	_, err = ParseKind("ordinal")
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	tbl := mustReadCSV(t)
	assert.Equal(t, []string{"customerID", "gender", "SeniorCitizen", "tenure", "Contract", "Churn"}, tbl.Columns)
	assert.Equal(t, 5, tbl.Len())
	assert.Equal(t, "Male", tbl.Rows[1]["gender"])

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	again, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(tbl, again); diff != "" {
		t.Errorf("CSV round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestDropIncomplete(t *testing.T) {
	tbl := mustReadCSV(t)
	clean, dropped := DropIncomplete(tbl)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 3, clean.Len())
	for _, r := range clean.Rows {
		assert.NotEqual(t, "0004", r["customerID"])
		assert.NotEqual(t, "0005", r["customerID"])
	}
}

func TestRecodeBinary(t *testing.T) {
	tbl := mustReadCSV(t)
	require.NoError(t, RecodeBinary(tbl, "SeniorCitizen", "Yes", "No"))
	col, err := tbl.Column("SeniorCitizen")
	require.NoError(t, err)
	assert.Equal(t, []string{"No", "Yes", "No", "No", "No"}, col)

	err = RecodeBinary(tbl, "Partner", "Yes", "No")
	var schemaErr *errors.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestLabels(t *testing.T) {
	tbl := mustReadCSV(t)
	_, err := Labels(tbl, "Churn", "Yes")
	assert.Error(t, err, "blank label must be rejected")

	clean, _ := DropIncomplete(tbl)
	labels, err := Labels(clean, "Churn", "Yes")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, labels)
}

func TestSelectAndDrop(t *testing.T) {
	tbl := mustReadCSV(t)
	sel, err := tbl.Select("tenure", "gender")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenure", "gender"}, sel.Columns)
	assert.Len(t, sel.Rows[0], 2)

	_, err = tbl.Select("gender", "Partner")
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"Partner"}, schemaErr.Columns)

	dropped := tbl.Drop("customerID", "Churn")
	assert.Equal(t, []string{"gender", "SeniorCitizen", "tenure", "Contract"}, dropped.Columns)
}

func TestTrainTestSplitKeepsAlignment(t *testing.T) {
	rows := make([]Record, 100)
	labels := make([]bool, 100)
	for i := range rows {
		churn := i%3 == 0
		v := "No"
		if churn {
			v = "Yes"
		}
		rows[i] = Record{"id": string(rune('A' + i%26)), "Churn": v}
		labels[i] = churn
	}
	tbl := NewTable([]string{"id", "Churn"}, rows)

	train, test, trainY, testY, err := TrainTestSplit(tbl, labels, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, 75, train.Len())
	assert.Equal(t, 25, test.Len())
	for i, r := range test.Rows {
		assert.Equal(t, r["Churn"] == "Yes", testY[i], "row %d misaligned", i)
	}
	for i, r := range train.Rows {
		assert.Equal(t, r["Churn"] == "Yes", trainY[i], "row %d misaligned", i)
	}

	// Same seed, same split.
	_, test2, _, _, err := TrainTestSplit(tbl, labels, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, test.Rows, test2.Rows)

	_, _, _, _, err = TrainTestSplit(tbl, labels[:99], 0.25, 42)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestSummarize(t *testing.T) {
	tbl := mustReadCSV(t)
	clean, _ := DropIncomplete(tbl)
	labels, err := Labels(clean, "Churn", "Yes")
	require.NoError(t, err)

	schema := Schema{{"gender", Categorical}, {"tenure", Numeric}}
	s, err := Summarize(clean, schema, labels)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Rows)
	assert.InDelta(t, 2.0/3.0, s.ChurnRate, 1e-12)
	assert.Equal(t, 1.0, s.Numeric["tenure"].Min)
	assert.Equal(t, 34.0, s.Numeric["tenure"].Max)
	assert.InDelta(t, 37.0/3.0, s.Numeric["tenure"].Mean, 1e-12)

	want := []CategoryStats{{Value: "Female", Count: 1, Churned: 1}, {Value: "Male", Count: 2, Churned: 1}}
	if diff := cmp.Diff(want, s.Categorical["gender"]); diff != "" {
		t.Errorf("gender stats mismatch (-want +got):\n%s", diff)
	}

	_, err = Summarize(tbl, schema, nil)
	var vErr *errors.ValueError
	assert.True(t, errors.As(err, &vErr), "blank tenure must fail numeric parsing, got %v", err)

	nan := FromRecords([]string{"gender", "tenure"}, Record{"gender": "Male", "tenure": "NaN"})
	_, err = Summarize(nan, schema, []bool{true})
	assert.True(t, errors.As(err, &vErr))
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"34", 34, true},
		{" 29.85 ", 29.85, true},
		{"-1e3", -1000, true},
		{"", 0, false},
		{"seven", 0, false},
		{"NaN", 0, false},
		{"+Inf", 0, false},
		{"-Infinity", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumeric(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseAssignments(t *testing.T) {
	r, err := ParseAssignments([]string{"gender=Male", "tenure=7", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, Record{"gender": "Male", "tenure": "7", "note": "a=b"}, r)

	_, err = ParseAssignments([]string{"gender"})
	assert.Error(t, err)
}

func TestLoadSQL(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "churn.db")
	db, err := sql.Open(DefaultSQLDriver, dsn)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE customers (customerID TEXT, gender TEXT, tenure INTEGER, MonthlyCharges REAL, Churn TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO customers VALUES
		('0001', 'Female', 1, 29.85, 'No'),
		('0002', 'Male', 34, 56.95, 'Yes'),
		('0003', NULL, 2, 53.85, 'Yes')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tbl, err := LoadSQL(context.Background(), "", dsn, `SELECT * FROM customers ORDER BY customerID`)
	require.NoError(t, err)
	assert.Equal(t, []string{"customerID", "gender", "tenure", "MonthlyCharges", "Churn"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "34", tbl.Rows[1]["tenure"])
	assert.Equal(t, "56.95", tbl.Rows[1]["MonthlyCharges"])
	assert.Equal(t, "", tbl.Rows[2]["gender"])

	clean, dropped := DropIncomplete(tbl)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 2, clean.Len())

	_, err = LoadSQL(context.Background(), DefaultSQLDriver, dsn, `SELECT * FROM missing_table`)
	assert.Error(t, err)
}

func TestScanCSV(t *testing.T) {
	var offsets, sizes []int
	var ids []string
	err := ScanCSV(strings.NewReader(churnCSV), 2, func(chunk *Table, offset int) error {
		offsets = append(offsets, offset)
		sizes = append(sizes, chunk.Len())
		col, err := chunk.Column("customerID")
		require.NoError(t, err)
		ids = append(ids, col...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, offsets)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []string{"0001", "0002", "0003", "0004", "0005"}, ids)

	full, err := ReadCSV(strings.NewReader(churnCSV))
	require.NoError(t, err)
	assert.Len(t, ids, full.Len())

	boom := errors.New("boom")
	calls := 0
	err = ScanCSV(strings.NewReader(churnCSV), 1, func(*Table, int) error {
		calls++
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)

	err = ScanCSV(strings.NewReader(""), 0, func(*Table, int) error { return nil })
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestCSVWriter_Streams(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf, []string{"customerID", "churn"})
	require.NoError(t, err)

	err = ScanCSV(strings.NewReader(churnCSV), 2, func(chunk *Table, _ int) error {
		before := buf.Len()
		if err := w.Write(chunk); err != nil {
			return err
		}
		// each chunk is on the writer before the next one is read
		assert.Greater(t, buf.Len(), before)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, w.Rows())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"customerID", "churn"}, back.Columns)
	require.Equal(t, 5, back.Len())
	assert.Equal(t, "0003", back.Rows[2]["customerID"])
	assert.Equal(t, "Yes", back.Rows[2]["churn"])
	assert.Equal(t, "", back.Rows[4]["churn"])
}
