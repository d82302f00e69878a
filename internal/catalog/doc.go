// Package catalog is the remote entity client for the event catalog.
//
// Client hands out one EntityClient per entity type. Listing is paginated;
// Pages turns the page-number protocol into a lazy, restartable sequence
// that stops at the first page whose NextPage is nil.
//
// Two implementations ship:
//   - RESTClient talks to the catalog's v1 or v2 REST API over
//     go-retryablehttp, retrying 429 and 5xx responses with backoff.
//   - Memory is an in-process catalog used by tests, scenario runs and
//     offline reconciles.
package catalog
