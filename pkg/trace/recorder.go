// Package trace implements the asynchronous trace recorder: an
// encrypted, batched, backpressure-tolerant writer of request/response
// records. Trace loss is preferable to blocking the live path — write
// failures are logged and swallowed, never retried.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axongate/axon/ent"
	"github.com/axongate/axon/pkg/crypto"
)

const (
	// FlushThreshold triggers an async flush when the queue reaches it.
	FlushThreshold = 100
	// FlushInterval is the background flusher period.
	FlushInterval = 5 * time.Second
	// flushTimeout bounds one batch insert.
	flushTimeout = 10 * time.Second
)

// Entry is one completed request/response pair before encryption.
type Entry struct {
	// TraceID is assigned at flush time when empty. Callers that need
	// to reference the trace (conversation messages) set it up front.
	TraceID   string
	TenantID  string
	RequestID string
	Model     string
	Provider  string
	Endpoint  string

	RequestBody  string // JSON-stringified
	ResponseBody *string

	LatencyMS         int64
	TTFBMS            *int64
	GatewayOverheadMS *int64

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	StatusCode       *int

	CreatedAt time.Time
}

// row is an encrypted, insert-ready trace.
type row struct {
	entry                Entry
	requestEncrypted     string
	requestIV            string
	responseEncrypted    *string
	responseIV           *string
	encryptionKeyVersion int
}

// Recorder batches encrypted trace rows in memory and flushes them to
// the database on a size threshold and a periodic timer. Record never
// blocks the caller and never panics outward.
type Recorder struct {
	client *ent.Client
	crypto *crypto.Service

	mu    sync.Mutex
	queue []row

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRecorder creates a Recorder and starts its background flusher.
func NewRecorder(client *ent.Client, cryptoSvc *crypto.Service) *Recorder {
	r := &Recorder{
		client: client,
		crypto: cryptoSvc,
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record encrypts and enqueues a trace. Failures are logged and the
// trace is dropped; the live request path is never affected.
func (r *Recorder) Record(entry Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Trace record panicked, trace dropped", "panic", rec)
		}
	}()

	reqEnc, reqIV, err := r.crypto.Encrypt(entry.TenantID, entry.RequestBody)
	if err != nil {
		slog.Warn("Failed to encrypt trace request body, trace dropped",
			"tenant_id", entry.TenantID, "request_id", entry.RequestID, "error", err)
		return
	}

	batch := row{
		entry:                entry,
		requestEncrypted:     reqEnc,
		requestIV:            reqIV,
		encryptionKeyVersion: r.crypto.KeyVersion(),
	}
	if entry.ResponseBody != nil {
		respEnc, respIV, err := r.crypto.Encrypt(entry.TenantID, *entry.ResponseBody)
		if err != nil {
			slog.Warn("Failed to encrypt trace response body, storing request only",
				"tenant_id", entry.TenantID, "request_id", entry.RequestID, "error", err)
		} else {
			batch.responseEncrypted = &respEnc
			batch.responseIV = &respIV
		}
	}
	if batch.entry.CreatedAt.IsZero() {
		batch.entry.CreatedAt = time.Now()
	}

	r.mu.Lock()
	r.queue = append(r.queue, batch)
	full := len(r.queue) >= FlushThreshold
	r.mu.Unlock()

	if full {
		go r.Flush(context.Background())
	}
}

// Flush atomically swaps out the current batch and inserts it. A write
// failure is logged and the batch is discarded.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	builders := make([]*ent.TraceCreate, 0, len(batch))
	for _, b := range batch {
		id := b.entry.TraceID
		if id == "" {
			id = uuid.New().String()
		}
		create := r.client.Trace.Create().
			SetID(id).
			SetTenantID(b.entry.TenantID).
			SetRequestID(b.entry.RequestID).
			SetProvider(b.entry.Provider).
			SetEndpoint(b.entry.Endpoint).
			SetRequestBodyEncrypted(b.requestEncrypted).
			SetRequestBodyIv(b.requestIV).
			SetLatencyMs(b.entry.LatencyMS).
			SetEncryptionKeyVersion(b.encryptionKeyVersion).
			SetCreatedAt(b.entry.CreatedAt)
		if b.entry.Model != "" {
			create.SetModel(b.entry.Model)
		}
		if b.responseEncrypted != nil {
			create.SetResponseBodyEncrypted(*b.responseEncrypted)
			create.SetResponseBodyIv(*b.responseIV)
		}
		create.SetNillableTtfbMs(b.entry.TTFBMS)
		create.SetNillableGatewayOverheadMs(b.entry.GatewayOverheadMS)
		create.SetNillablePromptTokens(b.entry.PromptTokens)
		create.SetNillableCompletionTokens(b.entry.CompletionTokens)
		create.SetNillableTotalTokens(b.entry.TotalTokens)
		create.SetNillableStatusCode(b.entry.StatusCode)
		builders = append(builders, create)
	}

	if err := r.client.Trace.CreateBulk(builders...).Exec(ctx); err != nil {
		slog.Error("Trace batch write failed, batch dropped",
			"count", len(batch), "error", err)
		return
	}
	slog.Debug("Trace batch flushed", "count", len(batch))
}

// QueueLen returns the number of unflushed rows.
func (r *Recorder) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Stop cancels the background flusher. The queue is not drained;
// callers that need durability invoke Flush first.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// run is the periodic flusher loop.
func (r *Recorder) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(context.Background())
		case <-r.stopCh:
			return
		}
	}
}
