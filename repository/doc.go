// Package repository composes the query compiler and the transaction engine
// into one generic repository per entity type, plus thin entity repositories
// adding domain finders. Every method takes the session it runs in; a nil
// session runs directly on the database.
package repository
