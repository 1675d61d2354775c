// Package wikipedia implements a metadata provider backed by the Wikipedia
// REST page summary endpoint.
//
// Requests share one token-bucket limiter and carry a User-Agent that follows
// the Wikimedia robot policy. Missing pages, disambiguation pages and pages
// whose title does not resemble the requested name are reported as not found.
package wikipedia
