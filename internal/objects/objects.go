// Package objects contains the records of the dashboard collections and their
// enumerations. JSON tags follow the column names of the underlying tables.
package objects
