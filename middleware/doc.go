// Package middleware wraps a storage.Storage with cross-cutting
// behaviour. Every wrapper is itself a storage.Storage and forwards
// Close to the wrapped store, so they stack freely:
//
//	s = middleware.Compression(s, middleware.Zstd)
//	s = middleware.Logging(s, logger)
package middleware
