// Package distribdtypes holds the domain types shared across distribd's
// consensus, reducer, mirror, and transport packages: the action tags
// replicated through the log, digests and locations, and the sentinel
// errors the rest of the module checks with errors.Is.
package distribdtypes
