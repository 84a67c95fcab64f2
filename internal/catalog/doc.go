// Package catalog keeps the local registry of mod definitions in step with
// the sources they came from.
//
// A Synchronizer fetches each source (a local path, a file:// URL or an
// http(s) URL), validates and parses it, and upserts the result into a
// registry.Registry. Sources are fetched concurrently and applied in the
// order given, so a later source for the same identifier always wins.
// Registered sources are remembered in sources.yaml next to the persisted
// definitions, and a freshness marker records when the last sync ran.
package catalog
