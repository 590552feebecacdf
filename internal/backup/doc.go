// Package backup keeps rolling file copies of the history database.
//
// Two independent series are kept next to the database:
//
//	<dir>/backups/startup/<name>.<DD-MM-YYYY-HH-mm-ss>.bak
//	<dir>/backups/regular/<name>.<DD-MM-YYYY-HH-mm-ss>.bak
//
// A startup backup is taken once when a session opens. Regular backups run on
// a timer every N days; the timer resumes from the last regular backup when it
// is restarted. Each series has its own retention count. Files in a series
// folder whose name carries no parsable date are deleted.
package backup
