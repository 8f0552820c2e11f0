// Package diag defines the diagnostic model shared by every generator phase.
//
// Phases report findings through a Reporter (usually a BagReporter) while they
// work, then convert the collected Bag into a fatal *Error with FromBag. An
// Error carries one class sentinel (ErrConfiguration, ErrUnknownSymbol,
// ErrUnsupportedMarshalling, ErrEmission, ErrEmissionIO) so callers can branch
// with errors.Is, plus the diagnostics that caused it.
//
// Rendering lives in internal/diagfmt; this package does no formatting beyond
// Diagnostic.String and Error.Error.
package diag
