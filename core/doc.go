// Package core contains the canonical channelgate domain contracts, entities,
// and orchestration logic: the grant path, the expiry sweep, and the store
// contracts they coordinate through. Adapters (telegram, scheduler, metrics,
// sql stores) depend on this package; core must not depend on any adapter.
package core
