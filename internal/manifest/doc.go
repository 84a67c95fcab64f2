// Package manifest handles parsing and validation of QuickMod definition
// payloads. A payload is a JSON record describing one mod: its identity,
// presentation fields and an ordered list of installable versions. Payloads
// are checked against the embedded JSON Schema, then against the semantic
// rules the schema cannot express (link URLs, version ranges), and either
// yield a *Definition or a *ValidationError naming the offending field.
package manifest
