package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/config"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	"github.com/CenterForOpenScience/gravyvalet/pkg/dibs"
	"github.com/CenterForOpenScience/gravyvalet/pkg/imps"
	"github.com/CenterForOpenScience/gravyvalet/pkg/invocation"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/oauth"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage/sqlite"
)

// runtime bundles the wired application components shared by the serve and
// worker commands.
type runtime struct {
	cfg         *config.Config
	store       storage.Store
	redisClient *redis.Client
	encryptor   *credentials.Encryptor
	coordinator *oauth.Coordinator
	registry    *addon.Registry
	transport   *network.Transport
	queue       *invocation.Queue
	engine      *invocation.Engine
	metrics     *prometheus.Registry
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)

	encryptor, err := credentials.NewEncryptor(cfg.EncryptSecret, cfg.EncryptSecretPriors,
		credentials.EncryptionDefaults{
			CostLog2:        cfg.ScryptCostLog2,
			BlockSize:       cfg.ScryptBlockSize,
			Parallelization: cfg.ScryptParallelization,
			SaltByteCount:   cfg.SaltByteCount,
			CacheEntries:    cfg.DerivedKeyCacheEntries,
		})
	if err != nil {
		_ = redisClient.Close()
		_ = store.Close()
		return nil, fmt.Errorf("building encryptor: %w", err)
	}

	transport := network.NewTransport(cfg.HTTPTimeout)
	coordinator := oauth.NewCoordinator(store, encryptor, dibs.NewLocker(redisClient),
		transport.Client(), cfg.CallbackBaseURL, cfg.RefreshWait)

	registry := addon.NewRegistry()
	imps.RegisterAll(registry)
	coordinator.ResolveAccountID = accountIDResolver(store, registry, transport, coordinator)

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	queue := invocation.NewQueue(redisClient, "")
	factory := invocation.NewFactory(store, coordinator, transport)
	engine := invocation.NewEngine(registry, store, factory, queue,
		cfg.InvocationTimeout, invocation.NewMetrics(metricsRegistry))

	return &runtime{
		cfg:         cfg,
		store:       store,
		redisClient: redisClient,
		encryptor:   encryptor,
		coordinator: coordinator,
		registry:    registry,
		transport:   transport,
		queue:       queue,
		engine:      engine,
		metrics:     metricsRegistry,
	}, nil
}

func (rt *runtime) Close() {
	rt.transport.Close()
	_ = rt.redisClient.Close()
	_ = rt.store.Close()
}

// accountIDResolver probes the account's provider for the optional
// account-identity hook and runs it with the freshly confirmed credentials.
func accountIDResolver(
	store storage.Store,
	registry *addon.Registry,
	transport *network.Transport,
	coordinator *oauth.Coordinator,
) oauth.AccountIDResolver {
	return func(ctx context.Context, account *models.AuthorizedAccount, creds credentials.Credentials) (string, error) {
		service, err := store.GetService(ctx, account.ExternalServiceID)
		if err != nil {
			return "", err
		}
		provider, err := registry.Lookup(service.ProviderName)
		if err != nil {
			return "", err
		}
		if _, ok := provider.Prototype.(addon.AccountIDResolver); !ok {
			return "", nil
		}

		requestor := network.NewRequestor(transport, account.APIBaseURL(service),
			coordinator.CredentialsSourceFor(account, service))
		imp, err := provider.New(addon.Instantiation{
			Config:      addon.Config{ExternalAPIURL: account.APIBaseURL(service)},
			Credentials: creds,
			Network:     requestor,
		})
		if err != nil {
			return "", err
		}
		resolver, ok := imp.(addon.AccountIDResolver)
		if !ok {
			return "", nil
		}
		return resolver.ResolveAccountID(ctx, requestor)
	}
}
