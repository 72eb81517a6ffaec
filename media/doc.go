// Package media holds the processors for the audio and video job kinds.
//
// Processors read an uploaded file from disk, hand it to an external
// transcriber or object detector, persist a record through a Repository
// and return a JSON-encodable result. Conditions that no retry can fix
// (missing or empty input, missing model binary) are returned as
// job.PermanentError; everything else is left untagged and retried.
//
// With an Embedder configured, each record is stored with an embedding of
// its text and Searcher ranks transcriptions and videos together against
// a query.
package media
