// Package httputil provides the HTTP plumbing shared by the remote
// collaborators of a render: the asset gateway, the price feed and render
// callbacks.
//
// # Fetching
//
// [Client.Get] issues a GET, reports the request to the observability HTTP
// hooks and classifies failures:
//
//   - 404 responses become NOT_FOUND errors
//   - network errors, 5xx and 429 responses are retryable NETWORK_ERRORs;
//     429 and 503 wait for the server's Retry-After when it sends one
//   - any other non-2xx status is a non-retryable NETWORK_ERROR
//
// # Retry
//
// [Retry] re-runs an operation with exponential backoff, but only for errors
// wrapped with [RetryableError]:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    data, err = client.Get(ctx, url)
//	    return err
//	})
//
// Render-level code never retries on its own; retry policy lives with the
// collaborator that talks to the network.
package httputil
