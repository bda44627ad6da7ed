// Package ownership decides whether an authenticated principal may act on a
// specific student, class, invoice, teacher or parent record.
//
// Every decision rebuilds an [AccessContext] from the [Relations] store:
// enrollments and parent links change, so nothing is cached. Admins bypass
// the resolver entirely.
//
// A missing link row for the caller's own role surfaces as
// [*LinkMissingError] rather than a plain denial, so operators can tell a
// broken account from a request for someone else's data.
package ownership
