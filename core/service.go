package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the entitlement lifecycle engine. It orchestrates grant creation
// (issuer then store then notifier) and the expiry sweep (store, revoker,
// store, notifier). It holds no per-cycle state: all cross-cutting
// coordination runs through the EntitlementStore's per-key atomicity.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper

	entitlementStore EntitlementStore
	catalogStore     CatalogStore
	eventStore       EventStore
	issuer           InviteIssuer
	revoker          MembershipRevoker
	notifier         Notifier

	nowFn func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("channelgate", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("channelgate"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.entitlementStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.entitlementStore = storeProvider.EntitlementStore()
				if builder.catalogStore == nil {
					builder.catalogStore = storeProvider.CatalogStore()
				}
				if builder.eventStore == nil {
					builder.eventStore = storeProvider.EventStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.entitlementStore = storeProvider.EntitlementStore()
			if builder.catalogStore == nil {
				builder.catalogStore = storeProvider.CatalogStore()
			}
			if builder.eventStore == nil {
				builder.eventStore = storeProvider.EventStore()
			}
		}
	}

	if builder.entitlementStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: entitlement store is required"))
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		entitlementStore: builder.entitlementStore,
		catalogStore:     builder.catalogStore,
		eventStore:       builder.eventStore,
		issuer:           builder.issuer,
		revoker:          builder.revoker,
		notifier:         builder.notifier,
		nowFn:            builder.nowFn,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn()
}

// boundedCall applies the configured external-call timeout. A deadline hit
// surfaces as a context error and is classified by the caller: transient for
// the sweep, issuance failure for the grant path.
func (s *Service) boundedCall(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.CallTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().CallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) authorizeOperator(actorID int64) error {
	if actorID != s.config.OperatorID {
		return newGateError(
			fmt.Sprintf("core: actor %d is not the operator", actorID),
			goerrors.CategoryAuthz,
			GateErrorUnauthorized,
		)
	}
	return nil
}

// UpsertChannel creates or replaces a catalog entry. Operator-gated like the
// grant path; the core never interprets price or plan fields.
func (s *Service) UpsertChannel(ctx context.Context, actorID int64, in UpsertChannelInput) (CatalogEntry, error) {
	if s == nil || s.catalogStore == nil {
		return CatalogEntry{}, s.mapError(fmt.Errorf("core: catalog store is required"))
	}
	if err := s.authorizeOperator(actorID); err != nil {
		return CatalogEntry{}, s.mapError(err)
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		return CatalogEntry{}, s.mapError(fmt.Errorf("core: channel id is required"))
	}
	if strings.TrimSpace(in.Name) == "" {
		return CatalogEntry{}, s.mapError(fmt.Errorf("core: channel name is required"))
	}

	entry, err := s.catalogStore.Upsert(ctx, in)
	if err != nil {
		return CatalogEntry{}, s.mapError(err)
	}
	return entry, nil
}

func (s *Service) SetDemoLink(ctx context.Context, actorID int64, channelID string, link string) error {
	if s == nil || s.catalogStore == nil {
		return s.mapError(fmt.Errorf("core: catalog store is required"))
	}
	if err := s.authorizeOperator(actorID); err != nil {
		return s.mapError(err)
	}
	if strings.TrimSpace(channelID) == "" {
		return s.mapError(fmt.Errorf("core: channel id is required"))
	}
	if err := s.catalogStore.SetDemoLink(ctx, strings.TrimSpace(channelID), strings.TrimSpace(link)); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) ListCatalog(ctx context.Context) ([]CatalogEntry, error) {
	if s == nil || s.catalogStore == nil {
		return nil, s.mapError(fmt.Errorf("core: catalog store is required"))
	}
	entries, err := s.catalogStore.List(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return entries, nil
}

// ListUserEntitlements returns the caller's active entitlements, newest
// expiry first as the store orders them.
func (s *Service) ListUserEntitlements(ctx context.Context, userID int64) ([]Entitlement, error) {
	if s == nil || s.entitlementStore == nil {
		return nil, s.mapError(fmt.Errorf("core: entitlement store is required"))
	}
	entitlements, err := s.entitlementStore.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return entitlements, nil
}

func (s *Service) appendEvent(ctx context.Context, in AppendEntitlementEventInput) {
	if s == nil || s.eventStore == nil {
		return
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = s.now()
	}
	if err := s.eventStore.AppendEvent(ctx, in); err != nil {
		s.logError(ctx, "entitlement event append failed", map[string]any{
			"entitlement_id": in.EntitlementID,
			"event_type":     string(in.EventType),
			"error":          err.Error(),
		})
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
