// Package httpcache keeps successful web lookup responses in a SQLite
// database so repeated runs do not query remote services again.
//
// Store is the table itself; Transport wraps an http.RoundTripper and serves
// GET requests from the store while entries are younger than the configured
// max age. Credentials in query strings never become part of a key.
package httpcache
