// Package api exposes the REST interface for submitting natural-language
// tasks, deploying workflows directly, and inspecting agents, tasks, and the
// platform tool catalog. Unified error codes are translated to HTTP status
// codes at this boundary.
package api
