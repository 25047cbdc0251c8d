// Package email composes messages through a chained Builder and hands them
// to a Transport for delivery. Defaults for both the transport and the
// message live in a Config that callers construct once and reuse for every
// Builder. The package also provides the SMTP Transport used by default, a
// Pool for sharing transports between builders, and a Journal that keeps
// delivery results.
//
// The package does not retry, queue, or validate addresses. Whatever the
// transport reports, including failures, is returned to the caller as is.
package email
