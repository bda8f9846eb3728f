package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/offlinefirst/scrollzoom/pkg/engine"
)

const (
	// Parse error: Invalid JSON was received by the server
	ErrCodeParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object
	ErrCodeInvalidRequest = -32600

	// Method not found: The method does not exist / is not available
	ErrCodeMethodNotFound = -32601

	// Invalid params: Invalid method parameters
	ErrCodeInvalidParams = -32602

	// Server error: the method ran and failed
	ErrCodeServerError = -32000
)

// JSONRPCRequest is one call. The fields are all omitempty so missing ones
// can be reported back to the client.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse carries either a result or an error.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCError is the JSON-RPC error object. It is also returned by Client.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
}

// SwitchParams toggles a feature on or off.
type SwitchParams struct {
	Enabled *bool `json:"enabled"`
}

// SwitchResult reports whether the request was honoured and the state that
// resulted.
type SwitchResult struct {
	OK      bool `json:"ok"`
	Enabled bool `json:"enabled"`
}

// StatusResult is the status method's answer.
type StatusResult struct {
	RunID   string `json:"runId,omitempty"`
	PID     int    `json:"pid"`
	Version string `json:"version,omitempty"`
	engine.Status
}

var errMissingEnabled = errors.New("'enabled' is required")

// invalidParams marks a handler failure caused by the request itself.
type invalidParams struct{ err error }

func (e invalidParams) Error() string { return e.err.Error() }

// handlerFunc is the signature of every method.
type handlerFunc func(params json.RawMessage) (interface{}, error)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"status":              s.handleStatus,
		"set_enabled":         s.handleSetEnabled,
		"set_dotdash_enabled": s.handleSetDotDashEnabled,
		"server.shutdown":     s.handleShutdown,
	}
}

func (s *Server) handleStatus(json.RawMessage) (interface{}, error) {
	var st engine.Status
	s.loop.Send(func() { st = s.engine.Status() })
	return StatusResult{RunID: s.runID, PID: s.pid, Version: s.version, Status: st}, nil
}

func (s *Server) handleSetEnabled(params json.RawMessage) (interface{}, error) {
	enable, err := decodeSwitch(params)
	if err != nil {
		return nil, err
	}
	var res SwitchResult
	s.loop.Send(func() {
		res.OK = s.engine.SetEnabled(enable)
		res.Enabled = s.engine.Status().Enabled
	})
	s.logger.Info("enable requested", "enabled", enable, "ok", res.OK)
	return res, nil
}

func (s *Server) handleSetDotDashEnabled(params json.RawMessage) (interface{}, error) {
	enable, err := decodeSwitch(params)
	if err != nil {
		return nil, err
	}
	var res SwitchResult
	s.loop.Send(func() {
		res.OK = s.engine.SetDotDashEnabled(enable)
		res.Enabled = s.engine.Status().DotDashEnabled
	})
	s.logger.Info("dot-dash drag requested", "enabled", enable, "ok", res.OK)
	return res, nil
}

func (s *Server) handleShutdown(json.RawMessage) (interface{}, error) {
	if s.shutdown == nil {
		return nil, errors.New("shutdown not supported")
	}
	s.logger.Info("shutdown requested over control socket")
	// The reply must go out before the listener closes.
	go s.shutdown()
	return okResponse, nil
}

var okResponse = map[string]interface{}{"status": "ok"}

func decodeSwitch(params json.RawMessage) (bool, error) {
	if len(params) == 0 {
		return false, invalidParams{errMissingEnabled}
	}
	var p SwitchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return false, invalidParams{fmt.Errorf("decode params: %w", err)}
	}
	if p.Enabled == nil {
		return false, invalidParams{errMissingEnabled}
	}
	return *p.Enabled, nil
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONRPCError(w, nil, ErrCodeParseError, "Parse error", "expecting jsonrpc payload")
		return
	}

	if req.JSONRPC != "2.0" {
		sendJSONRPCError(w, req.ID, ErrCodeInvalidRequest, "Invalid Request", "'jsonrpc' must be '2.0'")
		return
	}

	if req.ID == nil {
		sendJSONRPCError(w, nil, ErrCodeInvalidRequest, "Invalid Request", "'id' field is required")
		return
	}

	if req.Method == "" {
		sendJSONRPCError(w, req.ID, ErrCodeInvalidRequest, "Invalid Request", "'method' is required")
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		sendJSONRPCError(w, req.ID, ErrCodeMethodNotFound, "Method not found", fmt.Sprintf("Method '%s' not found", req.Method))
		return
	}

	s.logger.Debug("rpc request", "id", req.ID, "method", req.Method, "params", string(req.Params))

	result, err := handler(req.Params)
	if err != nil {
		var bad invalidParams
		if errors.As(err, &bad) {
			sendJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
			return
		}
		s.logger.Warn("rpc method failed", "method", req.Method, "error", err)
		sendJSONRPCError(w, req.ID, ErrCodeServerError, "Server error", err.Error())
		return
	}

	sendJSONRPCResponse(w, req.ID, result)
}

func sendJSONRPCResponse(w http.ResponseWriter, id interface{}, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		sendJSONRPCError(w, id, ErrCodeServerError, "Server error", err.Error())
		return
	}
	writeResponse(w, JSONRPCResponse{JSONRPC: "2.0", Result: raw, ID: id})
}

func sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string, data string) {
	writeResponse(w, JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}

func writeResponse(w http.ResponseWriter, resp JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
