// Package server implements the HTTP side of quickhook.
//
// Every GET and HEAD request, on any path, is a liveness check answered with
// 200 and the JSON string "OK". Every POST, on any path, is treated as a
// GitHub push notification: the body is parsed, compared with the configured
// repository and ref, and on a match the deploy sequence runs before the
// response is written. The response is the same 200 "OK" whether the push
// was ignored, deployed, or deployed with failing commands.
//
// Requests that cannot be read or parsed are returned as errors from the
// handler and turned into 500 responses at the boundary.
//
// There is no signature verification: a push is trusted on its content.
package server
