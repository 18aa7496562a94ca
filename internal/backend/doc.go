// Package backend is the HTTP/JSON client for the feed backend.
//
// Client implements engine.Backend. Requests are paced by a token bucket,
// carry the engine flow token as X-Request-ID, and fail with *StatusError
// for any non-2xx answer so the engine can classify them.
package backend
