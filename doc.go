// Package emrcore is the data-access layer of the clinic app: an authenticated
// JSON API client and, in package assets, the pipeline that fetches and
// decrypts clinical files.
//
// The client:
//   - Bounds every attempt with its own timeout
//   - Retries GET on timeouts, network errors and statuses 408, 429, 500,
//     502, 503 and 504 (200ms then 500ms backoff); writes are never retried
//   - Coalesces identical concurrent GETs for the same user into one call
//   - Unwraps the {"data": ...} envelope unless the body is a paginated list
//   - Clears the session token on 401 and notifies the app
//   - Reports attempts slower than a threshold to an observability hook
//   - Returns every failure as *Error with a stable type and retryability
//
// Typical usage:
//
//	client := emrcore.New(
//	    emrcore.WithBaseURL("https://api.example.com/v1"),
//	    emrcore.WithTimeout(30*time.Second),
//	)
//	defer client.Close()
//	client.SetToken(token)
//	client.SetOnUnauthorized(showLogin)
//
//	patient, err := emrcore.Decode[Patient](client.Get(ctx, "/patients/42"))
//	if emrcore.IsRetryable(err) {
//	    // offer "try again"
//	}
//
// Logging goes through the Logger interface; NewZapLogger adapts a zap logger.
// Enable verbose categories with WithDebug or WithDebugConfig.
package emrcore
