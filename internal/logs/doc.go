// Package logs reads the JSON log file written alongside console output.
//
// Tail returns the last lines of the file and the offset to continue from;
// Follow streams lines appended after that offset until the context ends.
// Lines can be narrowed to one record by matching the record_id field.
package logs
