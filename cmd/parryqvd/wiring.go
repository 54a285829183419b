package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	goredis "github.com/redis/go-redis/v9"

	"Parry-QV/internal/action"
	"Parry-QV/internal/chain"
	"Parry-QV/internal/config"
	"Parry-QV/internal/observability/alerting"
	"Parry-QV/internal/observability/metrics"
	"Parry-QV/internal/pinning"
	"Parry-QV/internal/relay"
	storageredis "Parry-QV/internal/storage/redis"
	"Parry-QV/internal/views"
	"Parry-QV/pkg/logger"
)

// chainNode 汇总节点连接、钱包与合约绑定。
type chainNode struct {
	client   *ethclient.Client
	wallet   chain.Wallet
	resolver *chain.Resolver
	bindings *chain.Bindings
	reader   *chain.Reader
}

func (n *chainNode) close() {
	if n.client != nil {
		n.client.Close()
	}
}

func dialChain(ctx context.Context, cfg *config.Config) (*chainNode, error) {
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}

	chainID := big.NewInt(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("查询链 ID 失败: %w", err)
		}
	}

	wallet, err := openWallet(cfg.Wallet, chainID)
	if err != nil {
		client.Close()
		return nil, err
	}

	resolver := chain.NewResolver(client, wallet)
	bindings := chain.NewBindings(resolver,
		common.HexToAddress(cfg.Chain.FactoryAddress),
		common.HexToAddress(cfg.Chain.PassportAddress))
	reader := chain.NewReader(bindings,
		chain.WithFanOut(cfg.Chain.FanOut),
		chain.WithGateway(cfg.Pinning.Gateway))

	return &chainNode{
		client:   client,
		wallet:   wallet,
		resolver: resolver,
		bindings: bindings,
		reader:   reader,
	}, nil
}

// openWallet 根据驱动构造钱包。none 表示只读网关。
func openWallet(cfg config.WalletConfig, chainID *big.Int) (chain.Wallet, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "clef":
		wallet, err := chain.DialClef(cfg.ClefEndpoint, chainID)
		if err != nil {
			return nil, err
		}
		return wallet, nil
	case "key", "":
		if len(cfg.PrivateKeys) == 0 {
			return nil, nil
		}
		wallet, err := chain.NewKeyWalletFromHex(chainID, cfg.PrivateKeys)
		if err != nil {
			return nil, err
		}
		return wallet, nil
	default:
		return nil, fmt.Errorf("未知的钱包驱动: %s", cfg.Driver)
	}
}

// viewCache 持有视图缓存以及它依赖的 Redis 连接。
type viewCache struct {
	views *views.Views
	redis *goredis.Client
}

func (c *viewCache) close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

func openViews(ctx context.Context, cfg *config.Config, node *chainNode, m *metrics.Metrics) (*viewCache, error) {
	cache := &viewCache{}
	var (
		backend views.Backend
		bus     views.Bus
	)
	switch cfg.Cache.Driver {
	case "redis":
		client, err := storageredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		cache.redis = client
		backend = views.NewRedisBackend(client, cfg.Cache.Prefix)
		bus = views.NewRedisBus(client, cfg.Cache.Channel)
	case "memory", "":
		backend = views.NewMemoryBackend()
		bus = views.NewLocalBus()
	default:
		return nil, fmt.Errorf("未知的缓存驱动: %s", cfg.Cache.Driver)
	}

	cache.views = views.New(node.reader, backend,
		views.WithTTL(cfg.Cache.TTL),
		views.WithLoadTimeout(cfg.Cache.LoadTimeout),
		views.WithBus(bus),
		views.WithObserver(m))
	return cache, nil
}

// buildSubmitter 组装默认策略以及按合约方法覆盖的策略。
func buildSubmitter(cfg *config.Config, node *chainNode, m *metrics.Metrics) (chain.Submitter, error) {
	relayClient, err := relay.NewClient(cfg.Relay.BaseURL,
		relay.WithHTTPClient(&http.Client{Timeout: cfg.Relay.Timeout}),
		relay.WithObserver(func(family relay.Family, status int, elapsed time.Duration, err error) {
			m.ObserveRelay(string(family), status, elapsed, err)
		}))
	if err != nil {
		return nil, err
	}

	var relayOpts []chain.RelaySubmitterOption
	if cfg.Submit.SkipSimulation {
		relayOpts = append(relayOpts, chain.WithoutSimulation())
	}
	strategies := map[chain.Strategy]chain.Submitter{
		chain.StrategyRelay:  chain.NewRelaySubmitter(node.bindings, relayClient, relayOpts...),
		chain.StrategyDirect: chain.NewDirectSubmitter(node.bindings),
	}

	fallback, err := chain.ParseStrategy(cfg.Submit.Strategy)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]chain.Submitter, len(cfg.Submit.Overrides))
	for method, raw := range cfg.Submit.Overrides {
		strategy, err := chain.ParseStrategy(raw)
		if err != nil {
			return nil, fmt.Errorf("方法 %s 的提交策略无效: %w", method, err)
		}
		overrides[strings.TrimSpace(method)] = strategies[strategy]
	}
	return chain.NewRouter(strategies[fallback], overrides), nil
}

func openStore(ctx context.Context, cfg *config.Config) (action.Store, error) {
	switch cfg.Actions.Store.Driver {
	case "mysql":
		return action.NewMySQLStore(ctx, cfg.Actions.Store.MySQL)
	case "mongo":
		return action.NewMongoStore(ctx, action.MongoConfig{
			URI:        cfg.Actions.Store.Mongo.URI,
			Database:   cfg.Actions.Store.Mongo.Database,
			Collection: cfg.Actions.Store.Mongo.Collection,
		})
	case "memory", "":
		return action.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("未知的动作存储驱动: %s", cfg.Actions.Store.Driver)
	}
}

func openQueue(ctx context.Context, cfg *config.Config) (action.Queue, error) {
	q := cfg.Actions.Queue
	switch q.Driver {
	case "redis":
		return action.NewRedisQueue(ctx, action.RedisQueueConfig{
			Redis:     cfg.Redis,
			Queue:     q.Name,
			BlockWait: q.BlockWait,
		})
	case "rabbitmq":
		return action.NewRabbitMQQueue(action.RabbitMQConfig{
			URL:      q.RabbitMQ.URL,
			Queue:    q.Name,
			Prefetch: q.RabbitMQ.Prefetch,
			Durable:  true,
		})
	case "memory", "":
		return action.NewMemoryQueue(q.Size), nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", q.Driver)
	}
}

func buildAlerting(cfg *config.Config) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if url := strings.TrimSpace(cfg.Alerting.WebhookURL); url != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    url,
			Client: &http.Client{Timeout: 5 * time.Second},
		})
	}
	logger.Named("alerting").Info("告警渠道已配置", slog.Int("channels", len(notifiers)))
	return alerting.NewFanout(notifiers...)
}

func buildPinner(cfg *config.Config) (*pinning.Client, error) {
	return pinning.NewClient(pinning.Config{
		URL:       cfg.Pinning.URL,
		APIKey:    cfg.Pinning.APIKey,
		SecretKey: cfg.Pinning.SecretKey,
		Gateway:   cfg.Pinning.Gateway,
	}, &http.Client{Timeout: time.Minute})
}
