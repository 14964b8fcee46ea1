package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client writes vacuum dispatch and master state points to one bucket.
//
// Writes never block the caller: points are batched by the library and
// sent every flush interval. A rejected batch is reported to the
// SetOnError callback and marks the client failing until a flush interval
// passes without another rejection.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	flush    time.Duration
	now      func() time.Time

	closed atomic.Bool

	mu           sync.Mutex
	onError      func(err error)
	lastRejected time.Time
	lastErr      error
}

// Connect pings the server and starts the batched write API.
// It returns ErrDisabled when telemetry is switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushSecs := batchSettings(cfg)
	flush := time.Duration(flushSecs) * time.Second

	// #nosec G115 -- batchSettings returns positive values
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
	}

	c := newClient(client, client.WriteAPI(cfg.Org, cfg.Bucket), flush)
	go c.watchRejections(c.writeAPI.Errors())
	return c, nil
}

func newClient(client influxdb2.Client, writeAPI api.WriteAPI, flush time.Duration) *Client {
	return &Client{
		client:   client,
		writeAPI: writeAPI,
		flush:    flush,
		now:      time.Now,
	}
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server not ready")
	}
	return nil
}

// batchSettings returns the batch size and flush interval in seconds,
// replacing unset or negative values with defaults.
func batchSettings(cfg config.InfluxDBConfig) (batchSize, flushSecs int) {
	batchSize, flushSecs = cfg.BatchSize, cfg.FlushInterval
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushSecs <= 0 {
		flushSecs = defaultFlushInterval
	}
	return batchSize, flushSecs
}

// watchRejections drains the write API's error channel until it closes.
func (c *Client) watchRejections(errs <-chan error) {
	for err := range errs {
		c.rejectedBatch(err)
	}
}

func (c *Client) rejectedBatch(err error) {
	c.mu.Lock()
	c.lastRejected = c.now()
	c.lastErr = err
	callback := c.onError
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// SetOnError sets the callback that receives rejected batch errors.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// HealthCheck pings the server and fails while batches are being
// rejected. A rejection counts until two flush intervals have passed,
// enough for the next batch to be attempted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.client == nil || c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	lastRejected, lastErr := c.lastRejected, c.lastErr
	c.mu.Unlock()
	if !lastRejected.IsZero() && c.now().Sub(lastRejected) < 2*c.flush {
		return fmt.Errorf("%w: %w", ErrWritesFailing, lastErr)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, c.client); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

// Flush sends buffered points now. It is a no-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || c.closed.Load() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes buffered points and releases the client. Writes after
// Close are dropped.
func (c *Client) Close() error {
	if c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// writable reports whether points may still be queued.
func (c *Client) writable() bool {
	return c.writeAPI != nil && !c.closed.Load()
}
