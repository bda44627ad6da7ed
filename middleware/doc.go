// Package middleware adapts campusAuth.Engine to net/http.
//
// # Guards
//
//   - [RequireAuth] validates the bearer access token and stores the
//     principal on the request context.
//   - [RequireOwnership] runs Engine.Authorize for the record a request
//     targets. The id comes from an ownership.Source such as [URLParam]
//     (chi route parameter) or [BodyField] (JSON body).
//
// [StatusFor] and [WriteError] turn engine errors into HTTP responses by
// their campusAuth.ErrorKind.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly.
//   - Decide access itself. Every decision comes from the Engine.
package middleware
