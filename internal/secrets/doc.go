// Package secrets redacts credentials from scraped chat text.
//
// Failure cases keep up to ten candidate samples per run, and those samples
// are written to SQLite and embedded into the failure index. Users paste API
// keys and connection strings into chats, so every sample passes through a
// Scrubber first. Findings carry rule IDs and offsets, never the match.
package secrets
