// Package provider implements the client for the external identity source.
// The source owns the identifier namespace that canonical works are
// deduplicated on; the pipeline treats its payloads as authoritative and
// passes them through without interpretation.
package provider
