package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/cleaning-platform/internal/config"
	"github.com/Leganyst/cleaning-platform/internal/coverage"
	"github.com/Leganyst/cleaning-platform/internal/db"
	"github.com/Leganyst/cleaning-platform/internal/geo"
	"github.com/Leganyst/cleaning-platform/internal/lifecycle"
	"github.com/Leganyst/cleaning-platform/internal/locker"
	"github.com/Leganyst/cleaning-platform/internal/matching"
	"github.com/Leganyst/cleaning-platform/internal/model"
	"github.com/Leganyst/cleaning-platform/internal/notify"
	"github.com/Leganyst/cleaning-platform/internal/pool"
	"github.com/Leganyst/cleaning-platform/internal/pricing"
	"github.com/Leganyst/cleaning-platform/internal/repository"
	"github.com/Leganyst/cleaning-platform/internal/service"
)

// app хранит собранное ядро со всеми зависимостями.
type app struct {
	svc        *service.BookingService
	dispatcher *notify.Dispatcher
	closers    []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		_ = a.close()
		return nil, err
	}

	// 1. Подключаемся к БД через GORM и накатываем миграции.
	gormDB, err := db.NewGormDB(cfg.DB)
	if err != nil {
		return fail(fmt.Errorf("init db: %w", err))
	}
	a.closers = append(a.closers, func() error { return db.Close(gormDB) })
	if err := model.AutoMigrate(gormDB); err != nil {
		return fail(fmt.Errorf("auto migrate: %w", err))
	}

	// 2. Redis, если настроен.
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		pctx, cancel := context.WithTimeout(ctx, cfg.CollaboratorTimeout)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	// 3. Гео: центроиды индексов из файла, расстояния локально или в Redis.
	distance, err := newDistance(ctx, cfg, rdb)
	if err != nil {
		return fail(err)
	}

	// 4. Уведомления: лог всегда, Kafka по настройке.
	loc := cfg.Location()
	notifiers := notify.Multi{notify.NewLogNotifier(logger, loc)}
	if cfg.Kafka.Enabled() {
		kn := notify.NewKafkaNotifier(notify.SplitBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic, loc)
		a.closers = append(a.closers, kn.Close)
		notifiers = append(notifiers, kn)
	}
	a.dispatcher = notify.NewDispatcher(notifiers, cfg.CollaboratorTimeout, logger)

	// 5. Ядро.
	a.svc = newService(gormDB, distance, rdb, a.dispatcher, cfg, logger)

	if _, err := a.svc.ReloadProviders(ctx); err != nil {
		return fail(err)
	}
	if _, err := a.svc.RestorePool(ctx); err != nil {
		return fail(err)
	}
	return a, nil
}

func newDistance(ctx context.Context, cfg *config.Config, rdb *redis.Client) (geo.DistanceService, error) {
	centroids := map[string]geo.Point{}
	if cfg.PostalCentroidsFile != "" {
		var err error
		if centroids, err = geo.LoadCentroids(cfg.PostalCentroidsFile); err != nil {
			return nil, err
		}
	}
	if rdb == nil {
		return geo.NewStaticDistance(centroids), nil
	}

	d := geo.NewRedisDistance(rdb, "")
	sctx, cancel := context.WithTimeout(ctx, cfg.CollaboratorTimeout)
	defer cancel()
	if err := d.Seed(sctx, centroids); err != nil {
		return nil, fmt.Errorf("seed postal centroids: %w", err)
	}
	return d, nil
}

func newService(gormDB *gorm.DB, distance geo.DistanceService, rdb *redis.Client, dispatcher *notify.Dispatcher, cfg *config.Config, logger *zap.Logger) *service.BookingService {
	bookings := repository.NewGormBookingRepository(gormDB)
	providers := repository.NewGormProviderRepository(gormDB)

	index := coverage.NewIndex(distance, cfg.Location())
	matcher := matching.NewMatcher(index, bookings, matching.Config{Timeout: cfg.CollaboratorTimeout}, logger.Named("matcher"))
	machine := lifecycle.NewMachine(matcher, func() time.Time { return time.Now().UTC() })

	var lk locker.Locker = locker.NewKeyedMutex()
	if rdb != nil {
		lk = locker.NewRedisLocker(rdb, "booking-lock:", cfg.LockTTL)
	}

	return service.NewBookingService(service.Deps{
		Bookings:  bookings,
		Providers: providers,
		Index:     index,
		Matcher:   matcher,
		Machine:   machine,
		Pool:      pool.New(machine, bookings, cfg.CollaboratorTimeout, logger.Named("pool")),
		Locker:    lk,
		Pricing:   pricing.NewCalculator(nil),
		Notifier:  dispatcher,
		// С Redis экземпляров несколько, пул сверяется с БД перед выдачей.
		SharedPool: rdb != nil,
		Timeout:    cfg.CollaboratorTimeout,
		Logger:     logger.Named("booking"),
	})
}
