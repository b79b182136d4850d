// Package query validates search parameters and builds M2M wire payloads.
//
// Validation fails fast with a *ValidationError naming the offending field,
// before any network traffic. Payload construction is deterministic: the
// same SearchParams always serialize to the same bytes, which keeps search
// requests testable and cacheable.
package query
