package upsert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// The cast in each placeholder is statement text, so type names are held to a
// strict charset rather than quoted.
var validTypeName = regexp.MustCompile(`^[a-z][a-z0-9_ ]*(\(\d+(,\d+)?\))?(\[\])?$`)

// LastSyncedColumn drives the out-of-order guard.  Every column list passed to
// Build must contain it.
const LastSyncedColumn = "last_synced_at"

var ErrMissingLastSyncedColumn = errors.New("upsert: column list must include a " + LastSyncedColumn + " column to drive the out-of-order guard")

// Column is one (name, declared sql type, value) tuple.  The value is bound
// positionally with an explicit cast - it is never interpolated into the
// statement text.
type Column struct {
	Name  string
	Type  string
	Value interface{}
}

// Statement is a parameterized sql statement plus its positional arguments.
type Statement struct {
	SQL  string
	Args []interface{}
}

// Build constructs an "insert, update if newer" statement for one row.  The
// update only fires when the stored last_synced_at is null or strictly older
// than the incoming one, so out-of-order writes never regress a row.  For a
// fixed input the output text and argument order are stable (insertion order
// of the column list).
func Build(schemaName string, tableName string, columns []Column, conflictTarget []string) (*Statement, error) {

	if schemaName == "" {
		return nil, errors.New("upsert: schema name must not be empty")
	}

	if tableName == "" {
		return nil, errors.New("upsert: table name must not be empty")
	}

	if len(columns) == 0 {
		return nil, errors.New("upsert: column list must not be empty")
	}

	if len(conflictTarget) == 0 {
		return nil, errors.New("upsert: conflict target must not be empty")
	}

	hasLastSynced := false
	for _, column := range columns {
		if column.Name == LastSyncedColumn {
			hasLastSynced = true
			break
		}
	}

	if !hasLastSynced {
		return nil, ErrMissingLastSyncedColumn
	}

	declaredColumns := make(map[string]bool, len(columns))
	for _, column := range columns {
		declaredColumns[column.Name] = true
	}

	conflictColumns := make(map[string]bool, len(conflictTarget))
	for _, name := range conflictTarget {
		if !declaredColumns[name] {
			return nil, fmt.Errorf("upsert: conflict target column %q is not in the column list", name)
		}
		conflictColumns[name] = true
	}

	columnNames := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	assignments := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))

	for i, column := range columns {
		if column.Name == "" {
			return nil, fmt.Errorf("upsert: column %d has an empty name", i)
		}

		if column.Type == "" {
			return nil, fmt.Errorf("upsert: column %q has no declared sql type", column.Name)
		}

		if !validTypeName.MatchString(column.Type) {
			return nil, fmt.Errorf("upsert: column %q has an invalid sql type %q", column.Name, column.Type)
		}

		columnNames = append(columnNames, quoteIdentifier(column.Name))
		placeholders = append(placeholders, fmt.Sprintf("$%d::%s", i+1, column.Type))
		args = append(args, column.Value)

		if !conflictColumns[column.Name] {
			assignments = append(assignments,
				fmt.Sprintf("%s = EXCLUDED.%s", quoteIdentifier(column.Name), quoteIdentifier(column.Name)))
		}
	}

	quotedTarget := make([]string, 0, len(conflictTarget))
	for _, name := range conflictTarget {
		quotedTarget = append(quotedTarget, quoteIdentifier(name))
	}

	qualifiedTable := quoteIdentifier(schemaName) + "." + quoteIdentifier(tableName)
	guardColumn := quoteIdentifier(tableName) + "." + quoteIdentifier(LastSyncedColumn)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)", qualifiedTable, strings.Join(columnNames, ", "))
	fmt.Fprintf(&b, " VALUES (%s)", strings.Join(placeholders, ", "))
	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(quotedTarget, ", "), strings.Join(assignments, ", "))
	fmt.Fprintf(&b, " WHERE %s IS NULL OR %s < EXCLUDED.%s", guardColumn, guardColumn, quoteIdentifier(LastSyncedColumn))
	b.WriteString(" RETURNING *")

	return &Statement{SQL: b.String(), Args: args}, nil
}

// quoteIdentifier double quotes an identifier, doubling any embedded quote
// characters so a hostile name cannot break out of the quoting.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
