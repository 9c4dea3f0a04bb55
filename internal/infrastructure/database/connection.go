package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
)

// ConnectionPool wraps the pgx pool used by the snapshot store with a circuit
// breaker and a background health check.
type ConnectionPool struct {
	primary         *pgxpool.Pool
	logger          *zap.Logger
	healthCheckStop chan struct{}
	closeOnce       sync.Once
	circuitBreaker  *CircuitBreaker
}

// CircuitBreaker implements circuit breaker pattern for database connections
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
	state           CircuitState
	timeout         time.Duration
	threshold       int
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, timeout: timeout, state: CircuitClosed}
}

// NewConnectionPool parses cfg, connects and pings the primary
func NewConnectionPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := &ConnectionPool{
		logger:          logger,
		healthCheckStop: make(chan struct{}),
		circuitBreaker:  NewCircuitBreaker(10, 30*time.Second),
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool.configurePgxPool(poolConfig, cfg)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool.primary, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.primary.Ping(ctx); err != nil {
		pool.primary.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	go pool.healthCheckRoutine()

	logger.Info("database connection pool initialized",
		zap.Int32("max_connections", poolConfig.MaxConns))
	return pool, nil
}

func (p *ConnectionPool) configurePgxPool(pc *pgxpool.Config, cfg config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pc.MaxConnIdleTime = 10 * time.Minute
	pc.HealthCheckPeriod = time.Minute

	pc.ConnConfig.RuntimeParams["application_name"] = "causal_correlation_engine"
	pc.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pc.ConnConfig.RuntimeParams["statement_timeout"] = "30s"

	pc.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		p.logger.Debug("establishing database connection",
			zap.String("host", cc.Host),
			zap.Uint16("port", cc.Port))
		return nil
	}
	pc.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return p.circuitBreaker.Allow()
	}
}

// Pool returns the underlying pgx pool
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.primary
}

// Transaction executes fn within a transaction, feeding the outcome to the circuit breaker
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, p.primary, pgx.TxOptions{}, fn)
	if err != nil {
		p.circuitBreaker.RecordFailure()
		return err
	}
	p.circuitBreaker.RecordSuccess()
	return nil
}

// DB returns a database/sql handle over the pool for migrations
func (p *ConnectionPool) DB() *sql.DB {
	return stdlib.OpenDBFromPool(p.primary)
}

func (p *ConnectionPool) healthCheckRoutine() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.performHealthCheck()
		case <-p.healthCheckStop:
			return
		}
	}
}

func (p *ConnectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.primary.Ping(ctx); err != nil {
		p.logger.Error("database health check failed", zap.Error(err))
		p.circuitBreaker.RecordFailure()
		return
	}
	p.circuitBreaker.RecordSuccess()
}

// Close stops the health check and closes all connections
func (p *ConnectionPool) Close() {
	p.closeOnce.Do(func() {
		close(p.healthCheckStop)
		p.primary.Close()
		p.logger.Info("database connection pool closed")
	})
}

// Allow reports whether a call may proceed. An open breaker moves to half open
// once its timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = CircuitClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitState reports the pool's breaker state
func (p *ConnectionPool) CircuitState() CircuitState {
	return p.circuitBreaker.State()
}
