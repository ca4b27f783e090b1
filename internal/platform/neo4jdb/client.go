package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/poldracklab/cogat/internal/platform/ctxutil"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	// ConnectTimeout bounds the socket connect and the startup connectivity check.
	ConnectTimeout time.Duration
	// QueryTimeout is applied to every transaction as a server-side timeout.
	QueryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.User) == "" {
		c.User = "neo4j"
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	return c
}

type Client struct {
	Driver       neo4j.DriverWithContext
	Database     string
	QueryTimeout time.Duration
	log          *logger.Logger
}

func New(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4jdb: uri required")
	}
	cfg = cfg.withDefaults()

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.ConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(vctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	log.Info("neo4j connected", "uri", cfg.URI, "database", cfg.Database, "max_pool", cfg.MaxPoolSize)
	return &Client{
		Driver:       driver,
		Database:     cfg.Database,
		QueryTimeout: cfg.QueryTimeout,
		log:          log.With("client", "Neo4jDB"),
	}, nil
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})
}

// Read runs work in a managed read transaction bounded by QueryTimeout.
func (c *Client) Read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work, c.txConfig(ctx)...)
}

// Write runs work in a managed write transaction bounded by QueryTimeout.
func (c *Client) Write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work, c.txConfig(ctx)...)
}

// txConfig tags transactions with the request id so server-side query logs
// can be joined with HTTP logs.
func (c *Client) txConfig(ctx context.Context) []func(*neo4j.TransactionConfig) {
	opts := []func(*neo4j.TransactionConfig){neo4j.WithTxTimeout(c.QueryTimeout)}
	if meta, ok := ctxutil.RequestMetaFrom(ctx); ok {
		if md := meta.TxMetadata(); len(md) > 0 {
			opts = append(opts, neo4j.WithTxMetadata(md))
		}
	}
	return opts
}

// EnsureSchema runs each statement outside a transaction. Failures are
// logged and skipped so restricted users can still run the service.
func (c *Client) EnsureSchema(ctx context.Context, statements []string) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, stmt := range statements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			c.log.Warn("neo4j schema init failed (continuing)", "statement", stmt, "error", err)
			continue
		}
		if _, err := res.Consume(ctx); err != nil {
			c.log.Warn("neo4j schema init failed (continuing)", "statement", stmt, "error", err)
		}
	}
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return fmt.Errorf("neo4jdb: client closed")
	}
	return c.Driver.VerifyConnectivity(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
