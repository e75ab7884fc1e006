// Package httpx provides a resilient HTTP client adapter for the tryvial
// library.
//
// Client wraps a standard http.Client with a tryvial policy and a
// user-provided status code classifier that maps HTTP response codes to
// transient or permanent errors. Transient statuses and transport errors are
// retried under the policy; permanent statuses stop the retry loop.
package httpx
