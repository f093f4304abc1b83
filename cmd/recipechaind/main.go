package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Recipe-Chain/internal/api"
	"Recipe-Chain/internal/auth"
	"Recipe-Chain/internal/bot"
	"Recipe-Chain/internal/config"
	"Recipe-Chain/internal/engine"
	"Recipe-Chain/internal/events"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/observability/alerting"
	"Recipe-Chain/internal/observability/metrics"
	"Recipe-Chain/internal/storage/mysql"
	redisindex "Recipe-Chain/internal/storage/redis"
	"Recipe-Chain/internal/web3"
	"Recipe-Chain/internal/web3/provider"
	"Recipe-Chain/pkg/logger"
)

// main 是 recipechain 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("recipechaind 运行失败: %v", err)
	}
}

// closers 按注册的逆序释放资源。
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.L().Warn("释放资源失败", slog.Any("error", err))
		}
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	var cleanup closers
	defer cleanup.close()

	owner, err := parseAddress("governance.owner", cfg.Governance.Owner)
	if err != nil {
		return err
	}
	genesis, err := genesisFromConfig(cfg)
	if err != nil {
		return err
	}

	reg := metrics.New()

	index, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := index.(interface{ Close() error }); ok {
		cleanup.add(closer.Close)
	}

	publisher, err := openPublisher(cfg, reg, index, &cleanup)
	if err != nil {
		return err
	}

	store, err := openLedger(ctx, cfg, publisher)
	if err != nil {
		return err
	}

	engineOpts := []engine.Option{engine.WithObserver(reg)}
	if pool := cfg.FlashLoan.Pool; pool != "" {
		poolAddr, err := parseAddress("flash_loan.pool", pool)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, engine.WithFlashLoan(poolAddr, cfg.FlashLoan.FeeBps))
	}
	if cfg.Web3.Configured() {
		chains, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		cleanup.add(func() error {
			chains.Close()
			return nil
		})
		client, err := chains.DefaultClient()
		if err != nil {
			return err
		}
		if snapshot, err := web3.Snapshot(ctx, client); err == nil {
			logger.L().Info("已连接链节点",
				slog.String("chain", snapshot.Chain),
				slog.String("chain_id", snapshot.ChainID),
				slog.Uint64("block", snapshot.BlockNumber),
			)
		} else {
			logger.L().Warn("读取链状态失败", slog.Any("error", err))
		}
		engineOpts = append(engineOpts, engine.WithGasPriceSource(client))
	}

	eng, err := engine.New(store, owner, engineOpts...)
	if err != nil {
		_ = store.Close()
		return err
	}
	cleanup.add(eng.Close)
	if err := eng.Bootstrap(ctx, genesis); err != nil {
		return err
	}

	jobStore, err := openJobStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	queue, err := openQueue(cfg)
	if err != nil {
		_ = jobStore.Close()
		return err
	}
	service := bot.NewService(jobStore, queue, cfg.JobStore.MaxRetries)
	cleanup.add(service.Close)

	if cfg.Bot.Enabled {
		if err := startBot(ctx, cfg, eng, service, jobStore, queue, index, reg); err != nil {
			return err
		}
	}

	server := api.NewServer(cfg.Server.Address, eng,
		api.WithJobs(service),
		api.WithAuthenticator(auth.NewTokenAuthenticator(cfg.Server.Tokens)),
		api.WithMetrics(reg, reg.Handler()),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openIndex(ctx context.Context, cfg *config.Config) (bot.Index, error) {
	switch cfg.Bot.Index.Driver {
	case "redis":
		return redisindex.NewIndex(ctx, redisindex.Config{
			Address:  cfg.Bot.Index.Address,
			Password: cfg.Bot.Index.Password,
			DB:       cfg.Bot.Index.DB,
			Key:      cfg.Bot.Index.Key,
		})
	default:
		return bot.NewMemoryIndex(), nil
	}
}

// openPublisher 组装提交后事件的下游：审计日志、指标、订阅索引以及可选的外部消息系统。
func openPublisher(cfg *config.Config, reg *metrics.Registry, index bot.Index, cleanup *closers) (ledger.Publisher, error) {
	sinks := []ledger.Publisher{
		events.AuditPublisher{Logger: logger.Audit()},
		events.Counting{Observer: reg},
		bot.NewIndexer(index),
	}
	if cfg.Events.Enabled("redis") {
		pub, err := events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Address:  cfg.Events.Redis.Address,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			Stream:   cfg.Events.Redis.Stream,
			MaxLen:   cfg.Events.Redis.MaxLen,
		})
		if err != nil {
			return nil, err
		}
		cleanup.add(pub.Close)
		sinks = append(sinks, pub)
	}
	if cfg.Events.Enabled("rabbitmq") {
		pub, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:      cfg.Events.RabbitMQ.URL,
			Exchange: cfg.Events.RabbitMQ.Exchange,
			Durable:  cfg.Events.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, err
		}
		cleanup.add(pub.Close)
		sinks = append(sinks, pub)
	}
	return events.NewFanout(sinks...), nil
}

func openLedger(ctx context.Context, cfg *config.Config, publisher ledger.Publisher) (ledger.Store, error) {
	switch cfg.Ledger.Driver {
	case "mysql":
		return mysql.Open(ctx, mysql.Config{
			DSN:             cfg.Ledger.MySQL.DSN,
			MaxOpenConns:    cfg.Ledger.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Ledger.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.Ledger.MySQL.ConnMaxLifetime(),
			ConnMaxIdleTime: cfg.Ledger.MySQL.ConnMaxIdleTime(),
		}, mysql.WithPublisher(publisher))
	default:
		return ledger.NewMemoryStore(ledger.WithPublisher(publisher)), nil
	}
}

// openJobStore 在未单独配置 DSN 时复用 MySQL 账本的连接池。
func openJobStore(ctx context.Context, cfg *config.Config, store ledger.Store) (bot.Store, error) {
	if cfg.JobStore.Driver != "mysql" {
		return bot.NewMemoryStore(), nil
	}
	if cfg.JobStore.DSN == "" {
		sqlStore, ok := store.(*mysql.Store)
		if !ok {
			return nil, errors.New("job_store 未配置 dsn 且账本不是 mysql")
		}
		return bot.NewSharedMySQLStore(sqlStore.DB())
	}
	db, err := mysql.OpenDB(ctx, mysql.Config{DSN: cfg.JobStore.DSN})
	if err != nil {
		return nil, err
	}
	return bot.NewMySQLStore(db)
}

func openQueue(cfg *config.Config) (bot.Queue, error) {
	switch cfg.Queue.Driver {
	case "redis":
		return bot.NewRedisQueue(bot.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return bot.NewRabbitMQQueue(bot.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
	case "memory":
		return bot.NewMemoryQueue(cfg.Queue.Size), nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func startBot(ctx context.Context, cfg *config.Config, eng *engine.Engine, service *bot.Service, store bot.Store, queue bot.Queue, index bot.Index, reg *metrics.Registry) error {
	botAddr, err := parseAddress("bot.address", cfg.Bot.Address)
	if err != nil {
		return err
	}
	if approved, err := eng.IsBotApproved(ctx, botAddr); err != nil {
		return err
	} else if !approved {
		logger.L().Warn("bot 地址不在白名单中，执行将被拒绝", slog.String("bot", botAddr.Hex()))
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.Alerting.WebhookURL,
			Client: &http.Client{Timeout: time.Duration(cfg.Alerting.WebhookTimeoutSeconds) * time.Second},
		})
	}

	processor := bot.NewProcessor(botAddr, eng, store, index, queue,
		bot.WithWorkerCount(cfg.Bot.Workers),
		bot.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
		bot.WithJobObserver(reg),
		bot.WithProcessorLogger(logger.Named("bot")),
	)
	scanner, err := bot.NewScanner(cfg.Bot.Schedule, index, bot.NewStaticPlanner(cfg.Bot.Plans), service)
	if err != nil {
		return err
	}

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("作业处理器异常退出", slog.Any("error", err))
		}
	}()
	go func() {
		if err := scanner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("订阅扫描器异常退出", slog.Any("error", err))
		}
	}()
	logger.L().Info("bot 已启动",
		slog.String("bot", botAddr.Hex()),
		slog.String("schedule", cfg.Bot.Schedule),
		slog.Int("plans", len(cfg.Bot.Plans)),
	)
	return nil
}
