// Package flows contains the orchestration behind the Engine's credential,
// refresh and second-factor operations.
//
// Each flow function (RunValidateCredentials, RunRefresh, RunRevoke,
// RunVerifySecondFactor) takes a struct of function-valued dependencies and
// returns a result carrying a typed failure kind. The Engine maps those kinds
// to its sentinel errors, audit events and metrics.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import campusAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through the deps structs.
package flows
