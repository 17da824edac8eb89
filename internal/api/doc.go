// Package api provides the REST client for the notification backend.
//
// Endpoints used:
//   - POST /api/token/refresh/  exchange a refresh token for a new access token
//   - HEAD /api/health/         reachability probe used before reconnecting
//
// Real-time channels are served over WebSocket by the same host; see package connection.
package api
