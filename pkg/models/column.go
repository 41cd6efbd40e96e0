package models

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnMetadata describes one column as supplied by the schema-extraction
// collaborator. Names and types arrive already decoded; the engine never
// parses DDL. Instances are immutable for the duration of one scan.
type ColumnMetadata struct {
	SchemaName      string `json:"schema_name,omitempty"`
	TableName       string `json:"table_name"`
	ColumnName      string `json:"column_name"`
	DataType        string `json:"data_type"`
	IsNullable      bool   `json:"is_nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key,omitempty"`
	OrdinalPosition int    `json:"ordinal_position"`
	// MaxLength is the declared or observed max string length, when known.
	// Used only for data-type agreement checks; sample values never enter
	// the engine.
	MaxLength *int64 `json:"max_length,omitempty"`
}

// Ref returns the stable "table.column" reference used in results,
// diagnostics, and the AI collaborator contract.
func (c *ColumnMetadata) Ref() string {
	return c.TableName + "." + c.ColumnName
}

// Tuple returns the canonical "table|column|data_type" form used for
// fingerprinting and similarity comparison.
func (c *ColumnMetadata) Tuple() string {
	return fmt.Sprintf("%s|%s|%s",
		strings.ToLower(c.TableName),
		strings.ToLower(c.ColumnName),
		strings.ToLower(c.DataType))
}

// Schema maps table names to their columns, the shape delivered by the
// schema-extraction collaborator.
type Schema map[string][]ColumnMetadata

// TotalColumns returns the number of columns across all tables.
func (s Schema) TotalColumns() int {
	total := 0
	for _, cols := range s {
		total += len(cols)
	}
	return total
}

// TableNames returns all table names in deterministic (sorted) order.
func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableColumns returns one table's columns in canonical order: ordinal
// position, ties by column name. Returns nil for unknown tables.
func (s Schema) TableColumns(table string) []ColumnMetadata {
	cols, ok := s[table]
	if !ok {
		return nil
	}
	ordered := make([]ColumnMetadata, len(cols))
	copy(ordered, cols)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].OrdinalPosition != ordered[j].OrdinalPosition {
			return ordered[i].OrdinalPosition < ordered[j].OrdinalPosition
		}
		return ordered[i].ColumnName < ordered[j].ColumnName
	})
	return ordered
}

// OrderedColumns returns every column in canonical schema order: tables
// sorted by name, columns by ordinal position (ties by column name). Merged
// session results follow this order regardless of batch completion order.
func (s Schema) OrderedColumns() []ColumnMetadata {
	ordered := make([]ColumnMetadata, 0, s.TotalColumns())
	for _, table := range s.TableNames() {
		ordered = append(ordered, s.TableColumns(table)...)
	}
	return ordered
}

// SiblingColumnNames returns the column names of one table, used for table
// context resolution. Returns nil for unknown tables.
func (s Schema) SiblingColumnNames(table string) []string {
	cols, ok := s[table]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(cols))
	for i := range cols {
		names = append(names, cols[i].ColumnName)
	}
	return names
}
