// Package session manages the M2M auth token lifecycle.
//
// A Manager logs in with account credentials, holds the issued token, and
// renews it before the service's two hour expiry. Renewal is single-writer:
// concurrent EnsureValid callers produce exactly one login request.
package session
