// Package transport provides the HTTP client for the USGS M2M API.
//
// This package handles:
//   - JSON-over-POST requests against the fixed endpoint contract
//   - The response envelope (requestId, version, data, errorCode)
//   - Mapping service error codes and HTTP statuses to typed errors
//   - Retry with exponential backoff for transient failures
//   - Request rate limiting
//   - Streaming GET for resolved archive URLs
//
// # Usage
//
//	client := transport.NewClient(transport.Options{
//	    Timeout:           30 * time.Second,
//	    RetryAttempts:     1,
//	    RequestsPerSecond: 4,
//	})
//
//	data, err := client.Post(ctx, "scene-search", payload)
//
// Authentication failures are never retried; callers can classify errors
// with errors.Is against the package sentinels, or transport.IsTransient.
package transport
