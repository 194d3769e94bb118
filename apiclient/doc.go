// Package apiclient is the resilient HTTP client for the Auto-Dev Department
// backend.
//
// Every JSON call goes through one executor that enforces a per-attempt
// timeout, retries transient failures with exponential backoff and
// classifies failures into a single error type.
//
// # Usage
//
//	client, err := apiclient.New("http://localhost:8000",
//	    apiclient.WithLogger(logger),
//	    apiclient.WithRetryPolicy(apiclient.RetryPolicy{MaxAttempts: 4}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	issues, err := apiclient.Do[[]Issue](ctx, client, apiclient.Request{
//	    Path:  "/api/issues/",
//	    Query: url.Values{"project_id": {"default"}},
//	})
//	if err != nil {
//	    fmt.Println(apiclient.Message(err))
//	}
//
// # Retry Semantics
//
// MaxAttempts counts every attempt, including the first. A response is
// retried only when it carries a structured error envelope with status 5xx
// or 429. Timeouts and network failures are retried while attempts remain.
// A non-2xx response whose body is not a valid envelope is returned at once,
// whatever its status. The wait after failed attempt n is
// BaseDelay * Multiplier^n (1s, 2s, 4s with defaults); there is no wait
// after the final attempt.
//
// # Errors
//
// All failures are *Error. Use Code (or IsCode) to tell them apart and
// Message for the user-facing text.
package apiclient
