package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType represents the storage type of a canonical field.
type FieldType string

const (
	FieldTypeString    FieldType = "STRING"
	FieldTypeInteger   FieldType = "INTEGER"
	FieldTypeReal      FieldType = "REAL"
	FieldTypeNumeric   FieldType = "NUMERIC"
	FieldTypeTimestamp FieldType = "TIMESTAMP"
)

// IsNumeric reports whether values of the type are coerced to numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldTypeInteger, FieldTypeReal, FieldTypeNumeric:
		return true
	}
	return false
}

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeReal, FieldTypeNumeric, FieldTypeTimestamp:
		return true
	}
	return false
}

// FieldDefinition describes one column of a logical table.
type FieldDefinition struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	// Tags are alternate header names that map onto Key.
	Tags []string `json:"tags,omitempty"`
	// Unit names what a numeric value measures, e.g. UnitFraction.
	Unit string `json:"unit,omitempty"`
}

// UnitFraction marks rates stored as fractions: a "12.5%" cell is stored as
// 0.125. Bare numbers are stored as given.
const UnitFraction = "fraction"

// TableType identifies one of the logical analytics tables.
type TableType string

const (
	TableShangzhi        TableType = "shangzhi"
	TableJingzhuntong    TableType = "jingzhuntong"
	TableCustomerService TableType = "customer_service"
)

// Persisted table names.
const (
	FactShangzhi        = "fact_shangzhi"
	FactJingzhuntong    = "fact_jingzhuntong"
	FactCustomerService = "fact_customer_service"
	DimSKUs             = "dim_skus"
	DimShops            = "dim_shops"
)

// TableTypes lists the logical tables in declaration order.
func TableTypes() []TableType {
	return []TableType{TableShangzhi, TableJingzhuntong, TableCustomerService}
}

// FactTables lists the persisted fact tables in declaration order.
func FactTables() []string {
	return []string{FactShangzhi, FactJingzhuntong, FactCustomerService}
}

// IsFactTable reports whether name is one of the fact tables.
func IsFactTable(name string) bool {
	for _, table := range FactTables() {
		if table == name {
			return true
		}
	}
	return false
}

// ParseTableType accepts either the logical name or the persisted fact table name.
func ParseTableType(raw string) (TableType, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range TableTypes() {
		if value == string(t) || value == t.FactTable() {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table type %q", raw)
}

// FactTable returns the persisted table that holds rows of this type.
func (t TableType) FactTable() string {
	switch t {
	case TableShangzhi:
		return FactShangzhi
	case TableJingzhuntong:
		return FactJingzhuntong
	case TableCustomerService:
		return FactCustomerService
	}
	return ""
}

// IdentifierField returns the canonical identifier key filled by reconciliation.
func (t TableType) IdentifierField() string {
	switch t {
	case TableShangzhi:
		return "sku_code"
	case TableJingzhuntong:
		return "tracked_sku_id"
	case TableCustomerService:
		return "agent_account"
	}
	return ""
}

// Schema is the ordered field list of one logical table.
type Schema struct {
	Table  TableType         `json:"table"`
	Fields []FieldDefinition `json:"fields"`
}

// Field returns the definition registered under key.
func (s Schema) Field(key string) (FieldDefinition, bool) {
	for _, field := range s.Fields {
		if field.Key == key {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// HasField reports whether key is part of the schema.
func (s Schema) HasField(key string) bool {
	_, ok := s.Field(key)
	return ok
}

// RequiredFields returns the required definitions in schema order.
func (s Schema) RequiredFields() []FieldDefinition {
	var required []FieldDefinition
	for _, field := range s.Fields {
		if field.Required {
			required = append(required, field)
		}
	}
	return required
}

// Clone returns a deep copy so callers can mutate it freely.
func (s Schema) Clone() Schema {
	clone := Schema{Table: s.Table, Fields: make([]FieldDefinition, len(s.Fields))}
	for i, field := range s.Fields {
		if len(field.Tags) > 0 {
			field.Tags = append([]string(nil), field.Tags...)
		}
		clone.Fields[i] = field
	}
	return clone
}

// Validate checks that keys are present and unique and that every type is known.
func (s Schema) Validate() error {
	if s.Table.FactTable() == "" {
		return fmt.Errorf("unknown table type %q", s.Table)
	}
	if len(s.Fields) == 0 {
		return errors.New("schema has no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for idx, field := range s.Fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			return fmt.Errorf("field %d has an empty key", idx+1)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate field key %q", key)
		}
		seen[key] = struct{}{}
		if !field.Type.Valid() {
			return fmt.Errorf("field %s has unknown type %q", key, field.Type)
		}
	}
	return nil
}
