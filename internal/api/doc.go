// Package api implements the HTTP REST API and WebSocket server for the
// vacuum zones service.
//
// This package provides:
//   - REST endpoints for virtual rooms, masters and dispatch history
//   - WebSocket hub relaying vacuum.request, vacuum.dispatch and vacuum.state events
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition at the configured metrics path
//
// # Architecture
//
// Room commands go through the vacuum coordinator: starts are batched per
// master and dispatched after the debounce window, stops and return-home
// requests go to the master straight away. Bridges report state over MQTT;
// the coordinator and the bridge state cache broadcast events to the hub.
//
// # Security
//
// When security.jwt.secret is set, every route except /health requires a
// bearer token minted with that secret. Tokens carry a role and an optional
// list of masters they may command. WebSocket connections use single-use
// tickets so tokens never appear in URLs. With no secret configured the API
// is open, which suits a trusted network only.
package api
