package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"receiptvault/internal/platform/config"
	"receiptvault/internal/platform/database"
	"receiptvault/internal/platform/health"
	"receiptvault/internal/platform/kafka"
	"receiptvault/internal/platform/logger"
	"receiptvault/internal/platform/metrics"
	platformredis "receiptvault/internal/platform/redis"
	"receiptvault/internal/vault/audit"
	"receiptvault/internal/vault/audit/kafkasink"
	"receiptvault/internal/vault/audit/sqlsink"
	"receiptvault/internal/vault/models"
	"receiptvault/internal/vault/service"
	"receiptvault/internal/vault/store"
	"receiptvault/internal/vault/tracer"
	"receiptvault/migrations"
	dErrors "receiptvault/pkg/domain-errors"
	"receiptvault/pkg/platform/circuit"
)

// app is a fully wired vault for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	vault    *service.Vault
	auditLog *audit.Log
	pool     *database.Pool
	redis    *platformredis.Client
	checks   map[string]health.CheckFunc
	closers  []func() error
}

type appOptions struct {
	// longRunning keeps info-level logs and enables OpenTelemetry spans.
	longRunning bool
	registry    prometheus.Registerer
}

// openApp loads configuration and wires backend, audit log and vault. The
// caller must Close the app.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer, aopts appOptions) (_ *app, err error) {
	cfg, errs := config.Load(opts.ConfigPath)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", errors.Join(errs...))
	}

	level := cfg.LogLevel
	switch {
	case opts.Verbose:
		level = "debug"
	case !aopts.longRunning:
		level = "warn"
	}
	if aopts.registry == nil {
		aopts.registry = prometheus.NewRegistry()
	}

	a := &app{
		cfg:    cfg,
		logger: logger.New(logOut, level, cfg.LogFormat),
		checks: make(map[string]health.CheckFunc),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open artifact backend", err)
	}

	if err := a.openAuditLog(ctx, aopts.registry); err != nil {
		return nil, WrapExitError(ExitCommandError, "open audit log", err)
	}

	vaultOpts := []service.Option{
		service.WithLogger(a.logger),
		service.WithMetrics(metrics.NewWithRegistry(aopts.registry)),
		service.WithAuditLog(a.auditLog),
		service.WithLockTimeout(cfg.LockTimeout),
	}
	if aopts.longRunning {
		vaultOpts = append(vaultOpts, service.WithTracer(tracer.NewOTel()))
	}
	a.vault, err = service.New(backend, vaultOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (store.Backend, error) {
	cfg := a.cfg
	switch cfg.Backend {
	case config.BackendMemory:
		a.logger.Warn("memory backend selected; artifacts do not outlive this process")
		return store.NewInMemory(), nil

	case config.BackendSQLite, config.BackendPostgres:
		pool, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.checks["database"] = pool.Health
		return store.NewSQL(pool.DB(), pool.Dialect()), nil

	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.checks["redis"] = client.Health
		return store.NewRedis(client.Client, cfg.Redis.Namespace), nil

	case config.BackendS3:
		api, err := store.NewS3Client(store.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		backend := store.NewS3(api, cfg.S3.Bucket, cfg.S3.Prefix)
		a.checks["s3"] = backend.Ping
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.Pool, error) {
	dbCfg := database.DefaultConfig()
	if cfg.Backend == config.BackendSQLite {
		dbCfg.Dialect = database.SQLite
		dbCfg.URL = cfg.SQLitePath
	} else {
		dbCfg.URL = cfg.Database.URL
		dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
		dbCfg.MaxIdleConns = cfg.Database.MaxIdleConns
		dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}

	pool, err := database.New(dbCfg)
	if err != nil {
		return nil, err
	}
	fsys, dir, ok := migrations.ForDialect(string(pool.Dialect()))
	if !ok {
		_ = pool.Close()
		return nil, fmt.Errorf("no migrations for dialect %q", pool.Dialect())
	}
	if err := database.Migrate(ctx, pool.DB(), fsys, dir); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}

// openAuditLog builds the in-process log, forwards it to the configured sink
// and, for the SQL sink, restores prior events so the log spans invocations.
func (a *app) openAuditLog(ctx context.Context, reg prometheus.Registerer) error {
	cfg := a.cfg
	logOpts := []audit.Option{
		audit.WithHashChain(cfg.AuditHashChain),
		audit.WithLogger(a.logger),
	}

	var (
		sink    audit.Sink
		restore func(context.Context) ([]models.Event, error)
	)
	switch cfg.AuditSink {
	case config.AuditSinkNone:
	case config.AuditSinkSQL:
		if a.pool == nil {
			return fmt.Errorf("sql audit sink requires a sql backend")
		}
		s := sqlsink.New(a.pool.DB(), a.pool.Dialect())
		sink = s
		restore = s.LoadAll
	case config.AuditSinkKafka:
		pcfg := kafka.DefaultConfig()
		pcfg.Brokers = cfg.Kafka.Brokers
		pcfg.Acks = cfg.Kafka.Acks
		producer, err := kafka.New(pcfg, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, producer.Close)
		a.checks["kafka"] = producer.Ping
		sink = kafkasink.New(producer, cfg.Kafka.Topic)
	default:
		return fmt.Errorf("unknown audit sink %q", cfg.AuditSink)
	}

	if sink != nil {
		pubOpts := []audit.PublisherOption{
			audit.WithPublisherLogger(a.logger),
			audit.WithPublisherMetrics(audit.NewMetrics(reg)),
		}
		if cfg.AuditAsyncBuffer > 0 {
			pubOpts = append(pubOpts, audit.WithAsyncBuffer(cfg.AuditAsyncBuffer))
		}
		pubOpts = append(pubOpts, audit.WithBreaker(circuit.New("audit_sink")))
		publisher := audit.NewPublisher(sink, pubOpts...)
		a.checks["audit_sink"] = publisher.Check
		a.closers = append(a.closers, func() error {
			publisher.Close()
			return nil
		})
		logOpts = append(logOpts, audit.WithEmitter(publisher))
	}

	a.auditLog = audit.NewLog(logOpts...)
	if restore != nil {
		events, err := restore(ctx)
		if err != nil {
			return err
		}
		if err := a.auditLog.Restore(events); err != nil {
			return err
		}
		a.logger.Debug("audit log restored", "events", len(events))
	}
	return nil
}

// Close releases resources in reverse order of acquisition, so the audit
// publisher drains before its sink's connection closes.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, opts *RootOptions, logOut io.Writer, fn func(a *app) error) (err error) {
	a, err := openApp(ctx, opts, logOut, appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

// exitErrorFor maps a vault error to an exit code: caller mistakes are
// command errors, everything else is a failed operation.
func exitErrorFor(message string, err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}
