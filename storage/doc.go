// Package storage defines the contract every cloudvault backend implements.
//
// The Storage interface has five primitives (List, Create, Get, Update,
// Delete). They take a context and block the calling goroutine until the
// backend answers, which makes them the asynchronous form of the contract:
// run them on their own goroutine to overlap work.
//
// On top of the primitives the package provides:
//   - GetAndDecrypt / EncryptAndUpdate, composing Get/Update with the
//     crypto envelope and tagging the failing stage
//   - Blocking, a context-free synchronous form of every operation that
//     runs each call on its own single-use executor
//
// Concurrent operations on the same id are not ordered. Callers that need
// last-writer-wins must serialise writes to an id themselves.
package storage
