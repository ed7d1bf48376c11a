// Package httpmw provides HTTP middleware for the API server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// recover, request ID, client key, flood guard, OTEL tracing, trace headers,
// metrics, request logger, then the chi router with compression, route
// annotation, access log and body limits. Per-route rate limiting sits on the
// route groups in apihttp because the category is a property of the route.
//
// Request bodies, query values and user agents are kept out of logs.
package httpmw
