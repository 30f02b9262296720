// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the generation session, translating HTTP concerns to dispatch and
// queue operations.
package api
