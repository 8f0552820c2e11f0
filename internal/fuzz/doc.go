// Package fuzztests houses Go fuzz harnesses for the catalog front end: type
// expressions, GUID literals and whole catalog files. They guard against
// panics on arbitrary input and check that whatever does load still resolves
// and lays out consistently.
//
// Seeds come from the embedded catalog, so every real declaration is part of
// the starting corpus.
package fuzztests
