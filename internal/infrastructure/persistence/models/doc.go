// Package models maps the settlement aggregates onto GORM rows: agents,
// orders with their items, ledger entries and return records. Domain types
// stay free of tags; every model has ToDomain and a From* constructor.
//
// Timestamp columns carry no explicit type so GORM picks timestamptz on
// PostgreSQL and datetime on SQLite. Attribution dates use the date type.
package models
