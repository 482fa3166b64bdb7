package odoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qbridge/backend/internal/domain/erp"
	syncdomain "github.com/qbridge/backend/internal/domain/sync"
)

// rpcStub answers JSON-RPC calls keyed by service/method
type rpcStub struct {
	t       *testing.T
	handler func(service, method string, args []any) (any, *rpcError)
	calls   []string
}

func (s *rpcStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
	s.calls = append(s.calls, req.Params.Service+"."+req.Params.Method)

	result, rpcErr := s.handler(req.Params.Service, req.Params.Method, req.Params.Args)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(s.t, json.NewEncoder(w).Encode(resp))
}

func newTestClient(t *testing.T, stub *rpcStub) (*Client, *httptest.Server) {
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	client := NewClient(Config{
		URL:      server.URL,
		Database: "erp",
		Username: "svc",
		Password: "secret",
		Timeout:  2 * time.Second,
	}, zap.NewNop())
	return client, server
}

func TestClientAuthenticate(t *testing.T) {
	t.Run("uid is cached across calls", func(t *testing.T) {
		stub := &rpcStub{t: t, handler: func(service, method string, args []any) (any, *rpcError) {
			switch method {
			case "authenticate":
				return 7, nil
			case "execute_kw":
				return []int64{}, nil
			}
			return nil, &rpcError{Code: 1, Message: "unexpected"}
		}}
		client, _ := newTestClient(t, stub)

		_, err := client.FindByNativeID(context.Background(), syncdomain.EntityCustomer, "80000001-1")
		assert.ErrorIs(t, err, erp.ErrRecordNotFound)
		_, err = client.FindByNativeID(context.Background(), syncdomain.EntityCustomer, "80000002-1")
		assert.ErrorIs(t, err, erp.ErrRecordNotFound)

		authCalls := 0
		for _, call := range stub.calls {
			if call == "common.authenticate" {
				authCalls++
			}
		}
		assert.Equal(t, 1, authCalls)
	})

	t.Run("false uid means bad credentials", func(t *testing.T) {
		stub := &rpcStub{t: t, handler: func(service, method string, args []any) (any, *rpcError) {
			return false, nil
		}}
		client, _ := newTestClient(t, stub)

		err := client.Ping(context.Background())
		assert.ErrorIs(t, err, erp.ErrAuthFailed)
	})
}

func TestClientCreate(t *testing.T) {
	t.Run("stamps marker field and entity defaults", func(t *testing.T) {
		var created map[string]any
		stub := &rpcStub{t: t, handler: func(service, method string, args []any) (any, *rpcError) {
			if method == "authenticate" {
				return 7, nil
			}
			// args: db, uid, password, model, method, [body]
			require.Len(t, args, 6)
			assert.Equal(t, "res.partner", args[3])
			assert.Equal(t, "create", args[4])
			inner := args[5].([]any)
			created = inner[0].(map[string]any)
			return 42, nil
		}}
		client, _ := newTestClient(t, stub)

		id, err := client.Create(context.Background(), syncdomain.EntityCustomer, "80000001-1", erp.Payload{"name": "Globex"})
		require.NoError(t, err)
		assert.Equal(t, "42", id)
		assert.Equal(t, "Globex", created["name"])
		assert.Equal(t, "80000001-1", created["x_qbd_id"])
		assert.Equal(t, float64(1), created["customer_rank"])
	})

	t.Run("server validation error is a rejection", func(t *testing.T) {
		stub := &rpcStub{t: t, handler: func(service, method string, args []any) (any, *rpcError) {
			if method == "authenticate" {
				return 7, nil
			}
			return nil, &rpcError{Code: 200, Message: "Odoo Server Error"}
		}}
		client, _ := newTestClient(t, stub)

		_, err := client.Create(context.Background(), syncdomain.EntityItem, "1-1", erp.Payload{})
		assert.ErrorIs(t, err, erp.ErrRejected)
	})
}

func TestClientUpdate(t *testing.T) {
	t.Run("writes by numeric destination id", func(t *testing.T) {
		var model string
		var ids []any
		stub := &rpcStub{t: t, handler: func(service, method string, args []any) (any, *rpcError) {
			if method == "authenticate" {
				return 7, nil
			}
			model = args[3].(string)
			inner := args[5].([]any)
			ids = inner[0].([]any)
			return true, nil
		}}
		client, _ := newTestClient(t, stub)

		err := client.Update(context.Background(), syncdomain.EntityInvoice, "42", erp.Payload{"ref": "INV-100"})
		require.NoError(t, err)
		assert.Equal(t, "account.move", model)
		require.Len(t, ids, 1)
		assert.Equal(t, float64(42), ids[0])
	})

	t.Run("non-numeric destination id is a rejection", func(t *testing.T) {
		client, _ := newTestClient(t, &rpcStub{t: t, handler: func(string, string, []any) (any, *rpcError) {
			return 7, nil
		}})
		err := client.Update(context.Background(), syncdomain.EntityInvoice, "abc", erp.Payload{})
		assert.ErrorIs(t, err, erp.ErrRejected)
	})
}

func TestClientTransport(t *testing.T) {
	t.Run("unreachable server is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close() // connection refused from here on
		client := NewClient(Config{URL: server.URL, Timeout: time.Second}, zap.NewNop())

		err := client.Ping(context.Background())
		assert.ErrorIs(t, err, erp.ErrUnavailable)
	})

	t.Run("server errors are unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)
		client := NewClient(Config{URL: server.URL, Timeout: time.Second}, zap.NewNop())

		err := client.Ping(context.Background())
		assert.ErrorIs(t, err, erp.ErrUnavailable)
	})
}
