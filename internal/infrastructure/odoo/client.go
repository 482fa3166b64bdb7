// Package odoo implements the remote ERP client over the JSON-RPC 2.0
// "execute_kw" surface. One authenticated uid is cached per client and
// re-established transparently after a server-side session reset.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/qbridge/backend/internal/domain/erp"
	syncdomain "github.com/qbridge/backend/internal/domain/sync"
)

// markerField stores the native source identifier on every remote record so
// lost identity mappings can be recovered by lookup.
const markerField = "x_qbd_id"

// entityModel maps entity types to remote ERP models. Invoices, bills,
// credit memos and journal entries all live on the unified accounting move
// model, distinguished by move_type.
var entityModel = map[syncdomain.EntityType]string{
	syncdomain.EntityItem:         "product.product",
	syncdomain.EntityCustomer:     "res.partner",
	syncdomain.EntityVendor:       "res.partner",
	syncdomain.EntityInvoice:      "account.move",
	syncdomain.EntityBill:         "account.move",
	syncdomain.EntityCreditMemo:   "account.move",
	syncdomain.EntityJournalEntry: "account.move",
}

// entityDefaults are constant field values stamped onto created records so
// multiple entity types can share one remote model.
var entityDefaults = map[syncdomain.EntityType]map[string]any{
	syncdomain.EntityCustomer:     {"customer_rank": 1},
	syncdomain.EntityVendor:       {"supplier_rank": 1},
	syncdomain.EntityInvoice:      {"move_type": "out_invoice"},
	syncdomain.EntityBill:         {"move_type": "in_invoice"},
	syncdomain.EntityCreditMemo:   {"move_type": "out_refund"},
	syncdomain.EntityJournalEntry: {"move_type": "entry"},
}

// Config carries the remote ERP connection settings
type Config struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks JSON-RPC to the remote ERP. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	uid    atomic.Int64 // 0 until authenticated
	rpcID  atomic.Int64
}

// NewClient creates an ERP client; no connection is made until the first call
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

var _ erp.Client = (*Client)(nil)

// ---------------------------------------------------------------------------
// JSON-RPC plumbing
// ---------------------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (c *Client) call(ctx context.Context, service, method string, args []any, out any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.rpcID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return erp.ErrUnavailable
		}
		return erp.ErrUnavailable
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		return erp.ErrUnavailable
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&rpcResp); err != nil {
		return erp.ErrUnavailable
	}
	if rpcResp.Error != nil {
		c.logger.Warn("erp rpc error",
			zap.String("service", service),
			zap.String("method", method),
			zap.Int("code", rpcResp.Error.Code),
			zap.String("message", rpcResp.Error.Message))
		return erp.ErrRejected
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return erp.ErrRejected
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// authenticate resolves and caches the remote uid
func (c *Client) authenticate(ctx context.Context) (int64, error) {
	if uid := c.uid.Load(); uid != 0 {
		return uid, nil
	}
	// the server answers the numeric uid, or `false` for bad credentials
	var result any
	args := []any{c.cfg.Database, c.cfg.Username, c.cfg.Password, map[string]any{}}
	if err := c.call(ctx, "common", "authenticate", args, &result); err != nil {
		return 0, err
	}
	uid, ok := result.(float64)
	if !ok || uid == 0 {
		return 0, erp.ErrAuthFailed
	}
	c.uid.Store(int64(uid))
	return int64(uid), nil
}

func (c *Client) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	callArgs := []any{c.cfg.Database, uid, c.cfg.Password, model, method, args}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}
	return c.call(ctx, "object", "execute_kw", callArgs, out)
}

// ---------------------------------------------------------------------------
// erp.Client implementation
// ---------------------------------------------------------------------------

// FindByNativeID searches the remote model by marker field
func (c *Client) FindByNativeID(ctx context.Context, entity syncdomain.EntityType, nativeID string) (string, error) {
	model, ok := entityModel[entity]
	if !ok {
		return "", erp.ErrRejected
	}
	domain := []any{[]any{markerField, "=", nativeID}}
	var ids []int64
	err := c.executeKw(ctx, model, "search", []any{domain}, map[string]any{"limit": 1}, &ids)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", erp.ErrRecordNotFound
	}
	return fmt.Sprintf("%d", ids[0]), nil
}

// List reads a page of records from the remote model
func (c *Client) List(ctx context.Context, entity syncdomain.EntityType, offset, limit int) (*erp.Page, error) {
	model, ok := entityModel[entity]
	if !ok {
		return nil, erp.ErrRejected
	}
	var records []map[string]any
	kwargs := map[string]any{"offset": offset, "limit": limit}
	if err := c.executeKw(ctx, model, "search_read", []any{[]any{}}, kwargs, &records); err != nil {
		return nil, err
	}
	var total int64
	if err := c.executeKw(ctx, model, "search_count", []any{[]any{}}, nil, &total); err != nil {
		return nil, err
	}
	page := &erp.Page{Total: int(total)}
	for _, rec := range records {
		page.Records = append(page.Records, erp.Payload(rec))
	}
	return page, nil
}

// Create inserts a record, stamping the native id marker and the entity
// type's constant defaults.
func (c *Client) Create(ctx context.Context, entity syncdomain.EntityType, nativeID string, payload erp.Payload) (string, error) {
	model, ok := entityModel[entity]
	if !ok {
		return "", erp.ErrRejected
	}
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	for k, v := range entityDefaults[entity] {
		body[k] = v
	}
	body[markerField] = nativeID

	var id int64
	if err := c.executeKw(ctx, model, "create", []any{body}, nil, &id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", id), nil
}

// Update replaces the mapped fields of an existing remote record
func (c *Client) Update(ctx context.Context, entity syncdomain.EntityType, destinationID string, payload erp.Payload) error {
	model, ok := entityModel[entity]
	if !ok {
		return erp.ErrRejected
	}
	var id int64
	if _, err := fmt.Sscanf(destinationID, "%d", &id); err != nil {
		return erp.ErrRejected
	}
	var okResult bool
	return c.executeKw(ctx, model, "write", []any{[]int64{id}, map[string]any(payload)}, nil, &okResult)
}

// Ping verifies connectivity and credentials by authenticating
func (c *Client) Ping(ctx context.Context) error {
	c.uid.Store(0) // force a fresh authentication round trip
	_, err := c.authenticate(ctx)
	return err
}
