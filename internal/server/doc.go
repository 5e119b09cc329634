// Package server provides HTTP routing, middleware, and the JSON API in front of the smart list
// engine.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are the stock middleware used by the daemon.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so one path can carry a handler per
// method and {owner}-style wildcards are read with [http.Request.PathValue].
//
// # API
//
// [API] exposes list CRUD, preview and refresh, ignore CRUD with bulk variants, and a session-start hook
// that feeds login events into the scheduler. Every route is scoped by the owner id in the path; there is no
// authentication layer.
//
// Errors map onto status codes by sentinel: validation and malformed input give 400, lookups 404, media
// server failures 502, anything else 500. Refresh endpoints always answer 200 with a structured result; the
// owner-wide refresh carries an "N succeeded, M failed" summary.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
