// Package registry holds the catalog of known mod definitions, keyed by
// their unique identifier. The in-memory Registry hands out copies so a
// reader never observes a half-written entry, and an optional Store mirrors
// every entry to one JSON file per identifier in the metadata directory.
package registry
