// Package storage archives terminal jobs to a SQL database via GORM.
//
// The in-memory registry stays authoritative for live jobs. When the
// retention janitor evicts completed or failed jobs they are written here
// so GetJob can still answer for them.
package storage
