// Package audit captures per-request start and end events.
//
// A Trail opens a Handle when a request arrives and closes it exactly once
// when the request leaves, on every exit path. Events recorded through the
// Handle (including nested spans such as AUTHENTICATION) are buffered per
// request and flushed together through an asynchronous Dispatcher into a Sink.
// Buffers are never shared across requests.
package audit
