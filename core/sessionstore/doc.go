// Package sessionstore provides durable backends for the session record:
// an in-memory store for tests and embedding, a file store for
// single-machine clients (with fsnotify-based cross-process change
// notification), a Redis store (pub/sub notification), and a Postgres
// store (LISTEN/NOTIFY).
//
// All backends implement session.Store and share its contract: Load
// treats a malformed or expired value as absent and purges it, Save
// replaces the record atomically from the caller's perspective, and
// Watch surfaces mutations made by other processes or instances so a
// logout in one propagates to the rest.
package sessionstore
