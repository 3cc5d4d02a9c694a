package warehouse

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/devrev/bqsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	assert.Nil(t, convertValue(nil))
	assert.Equal(t, int64(42), convertValue(int64(42)))
	assert.Equal(t, "abc", convertValue("abc"))
	assert.Equal(t, ts.UTC(), convertValue(ts))
	assert.Equal(t, 0.25, convertValue(big.NewRat(1, 4)))
	assert.Equal(t, "AQI=", convertValue([]byte{1, 2}))
	assert.Equal(t, `["a",1]`, convertValue([]bigquery.Value{"a", int64(1)}))
}

func TestColumnsFromSchema(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "price", Type: bigquery.NumericFieldType},
		{Name: "active", Type: bigquery.BooleanFieldType},
		{Name: "created", Type: bigquery.TimestampFieldType},
		{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
		{Name: "location", Type: bigquery.GeographyFieldType},
	}

	columns := columnsFromSchema(schema)

	require.Len(t, columns, 6)
	assert.Equal(t, model.Column{Name: "id", Type: model.ColumnTypeInteger, Nullable: false}, columns[0])
	assert.Equal(t, model.ColumnTypeFloat, columns[1].Type)
	assert.True(t, columns[1].Nullable)
	assert.Equal(t, model.ColumnTypeBoolean, columns[2].Type)
	assert.Equal(t, model.ColumnTypeDatetime, columns[3].Type)
	assert.Equal(t, model.ColumnTypeString, columns[4].Type)
	assert.Equal(t, model.ColumnTypeString, columns[5].Type)
}

func TestFirstInt64(t *testing.T) {
	table := model.NewTable(model.Column{Name: "count", Type: model.ColumnTypeInteger})
	_, err := FirstInt64(table)
	assert.Error(t, err)

	require.NoError(t, table.AppendRow(int64(25000)))
	n, err := FirstInt64(table)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), n)
}

func TestQualifiedTable(t *testing.T) {
	assert.Equal(t, "`proj.sales.orders`", QualifiedTable("proj", "sales", "orders"))
}
