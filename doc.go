// Package agentdeck is a real-time operations dashboard for AI agent fleets.
//
// # Overview
//
// AgentDeck keeps a browser dashboard current over a remote data store
// without manual refreshes. Every read goes through a stale-while-revalidate
// query cache; every write invalidates the queries it affects; row-level
// change pushes from the store invalidate them too, so truth always comes
// from a refetch, never from merging pushed payloads.
//
// The system consists of three main components:
//   - API Server: JSON endpoints plus a WebSocket feed of change pulses
//   - Sync Core: query cache, refresh controller and realtime change router
//   - Gateway: REST and push-channel client for the hosted data store
//
// # Architecture
//
//	┌─────────────────┐
//	│  Dashboard UI   │
//	│  (browser)      │
//	└────────┬────────┘
//	         │ JSON + WebSocket
//	┌────────▼────────┐
//	│  API Server     │
//	│  (Echo REST)    │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Sync Core      │◄──────┤  Change Router  │
//	│  (query cache)  │       │  (push channel) │
//	└────────┬────────┘       └────────┬────────┘
//	         │ REST                    │ WebSocket
//	┌────────▼─────────────────────────▼────────┐
//	│            Remote Data Store              │
//	└───────────────────────────────────────────┘
//
// # Core Features
//
//   - Typed repositories for agents, workflows and system logs
//   - Request deduplication: concurrent readers share one in-flight fetch
//   - Background interval refresh and refocus refresh for mounted queries
//   - Shared, refcounted push subscriptions with reconnect backoff
//   - Derived fleet statistics computed from cached snapshots
//   - Local sqlite-backed dev gateway with an activity simulator
//
// # Getting Started
//
// Generate a config file, then start the server:
//
//	agentdeck config init
//	agentdeck serve
//
// For local development without the hosted store:
//
//	agentdeck dev &
//	AD_GATEWAY_URL=http://localhost:9910 AD_GATEWAY_KEY=dev agentdeck serve
//
// See the package documentation under internal/ for component details.
package agentdeck
