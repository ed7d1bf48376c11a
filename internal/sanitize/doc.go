// Package sanitize strips markup from untrusted text and checks the format of
// identifiers, emails, dates, enums and uploaded file signatures.
//
// Everything here is a pure function: no shared state, safe for concurrent
// use, and no errors for well-typed input. Callers decide what a false result
// means (the API answers 400 with a JSON error body). None of these checks
// know anything about business rules such as whether a trip's end date is
// after its start date.
package sanitize
