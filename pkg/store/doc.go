// Package store persists the configuration model as a TOML document,
// by default /etc/mpwrd-config.toml.
//
// The file is treated as a layered document: the typed model owns a
// known set of keys, and everything else (comments, unknown keys,
// foreign sections) belongs to the operator. Load falls back to
// defaults for absent keys; Save rewrites only the model-owned keys
// and leaves the rest byte-for-byte intact.
//
// Writes are atomic (temp file, fsync, rename) and serialized across
// processes with an exclusive flock. A malformed existing file is
// never clobbered by Save and never silently replaced by Load; both
// surface a ParseError carrying the offending position.
package store
