// Package database opens and supervises the Bun connection of the persistence
// layer. It resolves the mysql, postgres and sqlite backends, bootstraps
// tables with their foreign keys, classifies driver errors into a handful of
// kinds and exports query metrics.
package database
