// Package connectivity dispatches named actions: a caller sends an action
// name and a JSON payload, the router picks a handler and returns its
// bytes. This is the message surface of rewind (START_RECORDING,
// GET_RECORDING_DATA, ...).
//
// Actions run locally by default. An optional SQLite routes table can
// disable an action or forward it to another rewind instance over HTTP,
// and is hot-reloaded when it changes:
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("START_RECORDING", startHandler)
//	go router.Watch(ctx, db, time.Second)
//
//	resp, err := router.Call(ctx, "START_RECORDING", payload)
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Strategies of the routes table.
const (
	StrategyLocal    = "local"
	StrategyHTTP     = "http"
	StrategyDisabled = "disabled"
)

// Handler is a transport-agnostic action function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler forwarding action to a remote endpoint.
// The returned close function runs when the route is removed or replaced;
// it may be nil.
type TransportFactory func(action, endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// Message is the wire envelope accepted by Dispatch.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type route struct {
	Action   string
	Strategy string
	Endpoint string
	Config   json.RawMessage
	Timeout  time.Duration // from config timeout_ms, any strategy
}

// routeConfig holds the config keys the router itself reads. Transport
// factories read their own keys from the same object.
type routeConfig struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches actions. Reads use RLock, reloads use Lock.
type Router struct {
	mu         sync.RWMutex
	local      map[string]Handler
	remote     map[string]remoteEntry
	routeSnap  map[string]route
	factories  map[string]TransportFactory
	middleware HandlerMiddleware
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every dispatched handler, local or remote.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.middleware = chain(mws) }
}

// New creates a Router with no actions.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		routeSnap: make(map[string]route),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for action.
func (r *Router) RegisterLocal(action string, h Handler) {
	r.mu.Lock()
	r.local[action] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a routes-table strategy.
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Call dispatches action. Resolution order:
//  1. disabled route: rejected with *ErrActionDisabled.
//  2. remote route built from the routes table.
//  3. local handler.
//  4. *ErrActionNotFound.
//
// A route with a timeout bounds the handler by it. The action name is
// available to middleware through ActionFromContext.
func (r *Router) Call(ctx context.Context, action string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remote[action]
	localH := r.local[action]
	snap, hasRoute := r.routeSnap[action]
	mw := r.middleware
	r.mu.RUnlock()

	var h Handler
	switch {
	case hasRoute && snap.Strategy == StrategyDisabled:
		r.logger.DebugContext(ctx, "connectivity: action disabled", "action", action)
		return nil, &ErrActionDisabled{Action: action}
	case hasRemote:
		r.logger.DebugContext(ctx, "connectivity: routing remote",
			"action", action, "strategy", snap.Strategy, "endpoint", snap.Endpoint)
		h = entry.handler
	case localH != nil:
		h = localH
	default:
		return nil, &ErrActionNotFound{Action: action}
	}

	if hasRoute && snap.Timeout > 0 {
		h = Timeout(snap.Timeout)(h)
	}
	if mw != nil {
		h = mw(h)
	}
	return h(withAction(ctx, action), payload)
}

// Dispatch decodes a Message envelope and calls its action.
func (r *Router) Dispatch(ctx context.Context, raw []byte) ([]byte, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &ErrBadMessage{Err: err}
	}
	if msg.Action == "" {
		return nil, &ErrBadMessage{Err: errNoAction}
	}
	return r.Call(ctx, msg.Action, msg.Payload)
}

// Reload reads the routes table and rebuilds the remote handlers. Only
// routes whose (strategy, endpoint, config) changed are rebuilt.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT action, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM action_routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	newRoutes := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfgStr string
		if err := rows.Scan(&rt.Action, &rt.Strategy, &rt.Endpoint, &cfgStr); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfgStr)
		var rc routeConfig
		if err := json.Unmarshal(rt.Config, &rc); err != nil {
			r.logger.Warn("connectivity: bad route config", "action", rt.Action, "error", err)
		} else if rc.TimeoutMs > 0 {
			rt.Timeout = time.Duration(rc.TimeoutMs) * time.Millisecond
		}
		newRoutes[rt.Action] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newEntries := make(map[string]remoteEntry, len(newRoutes))
	for name, rt := range newRoutes {
		if rt.Strategy == StrategyLocal || rt.Strategy == StrategyDisabled {
			continue
		}
		if old, ok := r.routeSnap[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, exists := r.remote[name]; exists {
				newEntries[name] = existing
				continue
			}
		}

		factory, ok := r.factories[rt.Strategy]
		if !ok {
			r.logger.Warn("connectivity: no transport factory",
				"error", &ErrNoFactory{Action: name, Strategy: rt.Strategy})
			continue
		}
		h, closeFn, err := factory(name, rt.Endpoint, rt.Config)
		if err != nil {
			r.logger.Error("connectivity: factory failed", "action", name, "strategy", rt.Strategy,
				"endpoint", rt.Endpoint, "error", err)
			continue
		}
		newEntries[name] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("connectivity: route built", "action", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	// Close entries that were removed or rebuilt.
	for name, old := range r.remote {
		if old.close == nil {
			continue
		}
		if _, still := newEntries[name]; !still || r.routeSnap[name].fingerprint() != newRoutes[name].fingerprint() {
			old.close()
		}
	}

	r.remote = newEntries
	r.routeSnap = newRoutes
	r.logger.Info("connectivity: routes reloaded", "total", len(newRoutes), "remote", len(newEntries))
	return nil
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remote {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remote = make(map[string]remoteEntry)
	r.routeSnap = make(map[string]route)
	return nil
}
