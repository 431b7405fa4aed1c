package core

import (
	"context"
	"errors"
	"sync"

	"github.com/petal-labs/mcpchat/mcp"
)

// ModelCallObservation captures one model round-trip.
type ModelCallObservation struct {
	Provider     string
	Model        string
	DurationMS   int64
	InputTokens  int
	OutputTokens int
	ToolUses     int
	Success      bool
	ErrorCode    string
}

// ToolCallObservation captures one tools/call dispatch.
type ToolCallObservation struct {
	Server     string
	ToolName   string
	DurationMS int64
	Success    bool
	IsError    bool // the tool itself reported a failure
	ErrorCode  string
}

// ConnectObservation captures one connection attempt to a server.
type ConnectObservation struct {
	Server     string
	Attempt    int
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// HealthObservation captures one background ping of a server.
type HealthObservation struct {
	Server     string
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// Observer receives observability events from the session and agent layers.
type Observer interface {
	ObserveModelCall(observation ModelCallObservation)
	ObserveToolCall(observation ToolCallObservation)
	ObserveConnect(observation ConnectObservation)
	ObserveHealth(observation HealthObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveModelCall(ModelCallObservation) {}
func (noopObserver) ObserveToolCall(ToolCallObservation)   {}
func (noopObserver) ObserveConnect(ConnectObservation)     {}
func (noopObserver) ObserveHealth(HealthObservation)       {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide observer. Nil restores the no-op observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

// ActiveObserver returns the process-wide observer.
func ActiveObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return activeObserver
}

// ErrorCode classifies err into a short label for metrics and spans.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	var rpcErr *mcp.RPCError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	default:
		return "transport"
	}
}
