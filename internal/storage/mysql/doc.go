// Package mysql implements the ledger on MySQL. Every ledger transaction maps
// to one SERIALIZABLE database transaction; the schema comes from the embedded
// migrations in deploy/migrations and is tracked in schema_migrations.
package mysql
