// Package transcript persists chat histories. FileStore keeps one JSON array
// per chat in a directory ("<name>.json"); SQLiteStore keeps every chat in a
// single database file. Both append on Save and are safe for concurrent use.
package transcript
