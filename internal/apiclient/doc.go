// Package apiclient talks to the Flowstarter billing API on behalf of an
// operator.
//
// Every call takes the caller's session.Snapshot; the client itself holds
// no session state. Call builds the URL from the snapshot's base URL,
// attaches the snapshot's auth headers and the request ID, and decodes the
// response:
//
//   - a JSON body is kept raw in Response.Data
//   - a non-JSON body with a 2xx status is a plain-text success (Response.Text)
//   - a non-2xx status becomes an *APIError whose message is taken from the
//     JSON detail, message or error field, the raw text, or the status text
//   - transport failures become a *NetworkError
//
// The typed helpers (ListUsers, PricingConfig, SetupStatus, ...) wrap Call
// for each endpoint under /core/v1. Only SetupStatus applies a timeout.
package apiclient
