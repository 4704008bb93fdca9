// Package client implements the GitGuardian content-scanning API used by the
// scanner.
//
// [Client.MultiContentScan] posts up to [MultiDocumentLimit] documents to the
// multiscan endpoint and returns an [Outcome]: either a [Success] carrying one
// [ScanResult] per document, positionally aligned with the request, or a
// [Failure] carrying the HTTP status and the detail text returned by the API.
//
// Requests are rate limited with a token bucket and retried with exponential
// back-off on 429 and 5xx responses. HTTP clients are injected through
// [Options] so that tests can redirect calls to local httptest servers.
package client
