package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/streamgate/streamgate/internal/checkpoint"
	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/db"
	"github.com/streamgate/streamgate/internal/dispatcher"
	"github.com/streamgate/streamgate/internal/host"
	httpSrv "github.com/streamgate/streamgate/internal/http"
	"github.com/streamgate/streamgate/internal/invoker"
	"github.com/streamgate/streamgate/internal/lease"
	"github.com/streamgate/streamgate/internal/logger"
	"github.com/streamgate/streamgate/internal/metrics"
	"github.com/streamgate/streamgate/internal/model"
	"github.com/streamgate/streamgate/internal/repository"
	"github.com/streamgate/streamgate/internal/stream"
	"github.com/streamgate/streamgate/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trigger host and admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if len(cfg.Bindings) == 0 {
			return fmt.Errorf("no bindings configured")
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		cps, mysqlDB, err := newCheckpointStore(cfg, redisClient)
		if err != nil {
			return err
		}
		if mysqlDB != nil {
			defer mysqlDB.Close()
		}

		var chDB *sqlx.DB
		var records dispatcher.Recorder
		if cfg.ClickHouse.DSN != "" {
			chDB, err = db.NewClickHouseConnection(db.ClickHouseOpts{
				DSN:             cfg.ClickHouse.DSN,
				MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
				MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
				ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
				ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
				PingTimeout:     cfg.ClickHouse.PingTimeout,
			})
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()
			records = repository.NewInvocationsRepository(chDB)
		}

		pools, err := buildPools(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bindings, err := buildBindings(ctx, cfg, pools)
		if err != nil {
			return err
		}

		coord := lease.NewRedisCoordinator(redisClient)
		owner := util.OwnerID()

		newFetcher := func(b host.Binding, partition int, offset int64) (dispatcher.Fetcher, error) {
			return stream.NewPartitionReader(stream.ReaderConfig{
				Brokers:   b.Brokers,
				Topic:     b.Stream,
				Partition: partition,
				Offset:    offset,
				MinBytes:  b.MinBytes,
				MaxBytes:  b.MaxBytes,
			})
		}

		h := host.New(
			owner,
			cfg.Lease.TTL,
			cfg.Lease.RenewInterval,
			coord,
			cps,
			records,
			newFetcher,
			bindings,
			logger.L(),
		)

		server := httpSrv.NewServer(cfg, h, cps, chDB, redisClient)

		go func() {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			if err := server.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server: %v", err)
				stop()
			}
		}()

		// the host runs in the foreground: Run only returns after its
		// dispatchers have stopped and every lease has been released
		log.Printf(">> host started owner=%s bindings=%d", owner, len(bindings))
		if err := h.Run(ctx); err != nil {
			log.Printf("host exited: %v", err)
		}

		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(sctx)

		return nil
	},
}

// buildPools groups enabled function endpoints by target.
func buildPools(cfg config.Config) (map[string]*invoker.Pool, error) {
	byTarget := make(map[string][]invoker.Endpoint)
	for _, fc := range cfg.Functions {
		if !fc.Enabled || fc.BaseURL == "" {
			continue
		}
		target := fc.Target
		if target == "" {
			target = fc.Name
		}
		byTarget[target] = append(byTarget[target],
			invoker.NewHTTPEndpoint(
				fc.Name,
				trimRightSlash(fc.BaseURL),
				fc.Path,
				fc.TimeoutMs,
				fc.Breaker.FailThreshold,
				fc.Breaker.OpenForMs,
			),
		)
	}

	pools := make(map[string]*invoker.Pool, len(byTarget))
	for target, eps := range byTarget {
		pools[target] = invoker.NewPool(target, eps, cfg.Dispatcher.MaxAttempts)
	}
	return pools, nil
}

// buildBindings validates binding config and resolves partition lists from
// the brokers.
func buildBindings(ctx context.Context, cfg config.Config, pools map[string]*invoker.Pool) ([]host.Binding, error) {
	bindings := make([]host.Binding, 0, len(cfg.Bindings))
	for _, bc := range cfg.Bindings {
		if bc.Name == "" || bc.Stream == "" {
			return nil, fmt.Errorf("binding needs name and stream")
		}

		card, ok := model.ParseCardinality(bc.Cardinality)
		if !ok {
			return nil, fmt.Errorf("binding %s: invalid cardinality %q", bc.Name, bc.Cardinality)
		}
		onErr, ok := model.ParseOnErrorPolicy(bc.OnError)
		if !ok {
			return nil, fmt.Errorf("binding %s: invalid on_error %q", bc.Name, bc.OnError)
		}
		startAt, ok := model.ParseStartPosition(bc.StartAt)
		if !ok {
			return nil, fmt.Errorf("binding %s: invalid start_at %q", bc.Name, bc.StartAt)
		}

		connName := bc.Connection
		if connName == "" {
			connName = "default"
		}
		conn, ok := cfg.Connections[connName]
		if !ok || len(conn.Brokers) == 0 {
			return nil, fmt.Errorf("binding %s: unknown connection %q", bc.Name, connName)
		}

		pool, ok := pools[bc.Target]
		if !ok {
			return nil, fmt.Errorf("binding %s: no enabled functions for target %q", bc.Name, bc.Target)
		}

		group := bc.ConsumerGroup
		if group == "" {
			group = "streamgate-" + bc.Name
		}

		batchSize := bc.MaxBatchSize
		if batchSize <= 0 {
			batchSize = cfg.Dispatcher.MaxBatchSize
		}
		batchWait := bc.MaxBatchWait
		if batchWait <= 0 {
			batchWait = cfg.Dispatcher.MaxBatchWait
		}

		partitions, err := stream.Partitions(ctx, conn.Brokers, bc.Stream)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", bc.Name, err)
		}

		bindings = append(bindings, host.Binding{
			Name:          bc.Name,
			Stream:        bc.Stream,
			ConsumerGroup: group,
			Brokers:       conn.Brokers,
			MinBytes:      conn.MinBytes,
			MaxBytes:      conn.MaxBytes,
			Cardinality:   card,
			OnError:       onErr,
			StartAt:       startAt,
			MaxBatchSize:  batchSize,
			MaxBatchWait:  batchWait,
			Partitions:    partitions,
			Invoker:       pool,
		})
	}
	return bindings, nil
}

func newCheckpointStore(cfg config.Config, rds *redis.Client) (checkpoint.Store, *sqlx.DB, error) {
	switch cfg.Checkpoint.Backend {
	case "", "redis":
		return checkpoint.NewRedisStore(rds), nil, nil
	case "mysql":
		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		return checkpoint.NewMySQLStore(mysqlDB), mysqlDB, nil
	case "memory":
		return checkpoint.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
