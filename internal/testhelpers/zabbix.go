package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RPCError is the error object a fake method can return
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// RPCHandler answers one JSON-RPC method
type RPCHandler func(params map[string]interface{}) (interface{}, *RPCError)

// RPCCall records a request received by the fake server
type RPCCall struct {
	Method     string
	Params     map[string]interface{}
	Auth       string
	AuthHeader string
}

// FakeZabbix is an httptest server speaking the Zabbix JSON-RPC protocol
type FakeZabbix struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    []RPCCall
}

// NewFakeZabbix starts a fake Zabbix API; it is closed with the test
func NewFakeZabbix(t *testing.T) *FakeZabbix {
	t.Helper()
	f := &FakeZabbix{handlers: make(map[string]RPCHandler)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the frontend base URL of the fake server
func (f *FakeZabbix) URL() string {
	return f.Server.URL
}

// Handle registers a handler for a method
func (f *FakeZabbix) Handle(method string, h RPCHandler) *FakeZabbix {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
	return f
}

// Result makes a method always return v
func (f *FakeZabbix) Result(method string, v interface{}) *FakeZabbix {
	return f.Handle(method, func(map[string]interface{}) (interface{}, *RPCError) {
		return v, nil
	})
}

// Fail makes a method always return an API error
func (f *FakeZabbix) Fail(method string, code int, message, data string) *FakeZabbix {
	return f.Handle(method, func(map[string]interface{}) (interface{}, *RPCError) {
		return nil, &RPCError{Code: code, Message: message, Data: data}
	})
}

// Calls returns the recorded calls of a method, or all calls when method is empty
func (f *FakeZabbix) Calls(method string) []RPCCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []RPCCall
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeZabbix) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/api_jsonrpc.php") {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Method string                 `json:"method"`
		Params map[string]interface{} `json:"params"`
		Auth   string                 `json:"auth"`
		ID     uint64                 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// user.logout sends an empty array as params
		req.Params = nil
	}

	f.mu.Lock()
	f.calls = append(f.calls, RPCCall{
		Method:     req.Method,
		Params:     req.Params,
		Auth:       req.Auth,
		AuthHeader: r.Header.Get("Authorization"),
	})
	h, ok := f.handlers[req.Method]
	f.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = RPCError{Code: -32601, Message: "Method not found.", Data: req.Method}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
