package sqlstore

import "github.com/channelgate/channelgate/core"

var (
	_ core.EntitlementStore       = (*EntitlementStore)(nil)
	_ core.CatalogStore           = (*CatalogStore)(nil)
	_ core.EventStore             = (*EventStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
