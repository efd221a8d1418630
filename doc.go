// Package notesync syncs a local markdown vault with a remote note store.
//
// Notes on both sides share one record shape keyed by an immutable id. Local
// files carry the id in their YAML front-matter; remote rows live in a
// Supabase "notes" table partitioned by user. A sync pass pulls remote notes
// into the vault through a template, and in two-way modes first pushes local
// edits back with a field-level merge that never blanks remote values.
//
// Features:
//
//   - **Sync modes**: one-way, one-way-delete (remote as an inbox), two-way and
//     realtime variants that mirror single changes over a websocket feed.
//   - **Stable file names**: titles are sanitized, templated and disambiguated
//     ("Foo (1).md"), and a note keeps its file across retitles.
//   - **Encryption**: optional passphrase encryption of title, content and
//     source, compatible with the OpenSSL "Salted__" format.
//   - **Links note**: every wikilink in the vault can be aggregated into one
//     remote note.
//
// Usage:
//
//	app, err := notesync.Open("", notesync.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer app.Close()
//
//	res := app.Sync(ctx)
package notesync
