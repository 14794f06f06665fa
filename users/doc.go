// Package users is the SQL-backed user directory.
//
// Records live in a single users table with the public profile and the
// private auth data stored as JSON text columns. SQLite (modernc.org/sqlite)
// is the default driver; postgres goes through pgx's database/sql adapter.
// The schema is applied with goose from embedded migrations.
package users
