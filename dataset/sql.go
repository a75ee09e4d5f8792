package dataset

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultSQLDriver is the database/sql driver name registered by
// modernc.org/sqlite.
const DefaultSQLDriver = "sqlite"

// LoadSQL opens a connection, runs query, materialises every row as a
// Record and closes the connection before returning. The session is never
// held across encoding or training. NULL becomes the empty string so that
// DropIncomplete removes the row.
func LoadSQL(ctx context.Context, driver, dsn, query string) (_ *Table, err error) {
	if driver == "" {
		driver = DefaultSQLDriver
	}
	logger := log.GetLoggerWithName("dataset")
	start := time.Now()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close database")
		}
	}()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "source query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read result columns")
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var records []Record
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "failed to scan row %d", len(records))
		}
		rec := make(Record, len(columns))
		for i, c := range columns {
			rec[c] = sqlString(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration failed")
	}

	logger.Info("Source table materialised",
		log.SourceKey, driver,
		log.SamplesKey, len(records),
		log.FeaturesKey, len(columns),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return NewTable(columns, records), nil
}

func sqlString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return ""
	}
}
