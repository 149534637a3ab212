// Package control implements the priority-ordered, request/response
// command bus described by the pipeline's control channel: a single
// subscriber per identity consumes commands from
// livermore:commands:{sub}, acknowledges or rejects them, and processes
// accepted commands strictly in priority order on one worker. Cache clears
// go through internal/cache's circuit breaker; the command subscription and
// response publishes go through internal/pubsub, which has no breaker.
// Pause and resume operate against the start/stop/status registry in
// internal/registry.
package control

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"livermore/internal/cache"
	"livermore/internal/exchange"
	"livermore/internal/logger"
	"livermore/internal/pubsub"
	"livermore/internal/registry"
)

var (
	ErrCommandExpired  = errors.New("control: command expired")
	ErrUnknownCommand  = errors.New("control: unknown command type")
	ErrStepUpRequired  = errors.New("control: step-up authentication required")
	ErrAdapterNotFound = errors.New("control: unknown exchange adapter")
)

const commandMaxAge = 30 * time.Second

// commandExpired reports whether a command timestamped ts has aged past
// the 30s bound as of now. Extracted as a pure function so the expiry rule
// is testable without a live Redis connection or the ability to publish a
// response.
func commandExpired(ts int64, now time.Time) bool {
	return now.Sub(time.UnixMilli(ts)) > commandMaxAge
}

// resolvePriority picks the queue priority for cmd: an explicit payload
// priority wins, otherwise the static per-type table, otherwise a low
// priority so an unrecognised type still reaches the worker and gets a
// proper "unknown command" error response rather than being silently
// dropped after its ack.
func resolvePriority(cmd Command) int {
	if cmd.Priority != nil {
		return *cmd.Priority
	}
	if p, ok := staticPriority[cmd.Type]; ok {
		return p
	}
	return 99
}

// staticPriority maps each command type to its fixed priority; lower
// values process first.
var staticPriority = map[string]int{
	"pause":            1,
	"resume":           1,
	"reload-settings":  10,
	"switch-mode":      10,
	"add-symbol":       15,
	"remove-symbol":    15,
	"force-backfill":   20,
	"clear-cache":      20,
}

// Command is the inbound wire shape on livermore:commands:{sub}.
type Command struct {
	CorrelationID string          `json:"correlationId"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     int64           `json:"timestamp"`
	Priority      *int            `json:"priority,omitempty"`
}

// Response is the outbound wire shape on livermore:responses:{sub}.
type Response struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"` // ack | success | error
	Data          any    `json:"data,omitempty"`
	Message       string `json:"message,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Backfiller is the external startup-backfill collaborator force-backfill
// and add-symbol invoke. Its internal design (how it reaches the REST
// backfill bootstrap) is out of scope; only this contract is specified.
type Backfiller interface {
	Backfill(ctx context.Context, exchangeID, symbol, tf string) error
}

// SettingsReloader is the external per-user settings/metadata-store
// collaborator reload-settings invokes. Out of scope beyond this contract.
type SettingsReloader interface {
	ReloadSettings(ctx context.Context) error
}

type handlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Controller owns one identity's command subscriber, response publisher,
// and single-worker priority queue.
type Controller struct {
	IdentitySub string
	Bus         *pubsub.Bus
	Cache       *cache.Store
	Registry    *registry.Registry
	Adapters    map[string]exchange.Adapter
	Backfill    Backfiller
	Settings    SettingsReloader
	StepUp      *StepUpChecker
	Log         *slog.Logger

	// OnQueueDepth and OnCommand, when set, record Prometheus gauges/
	// counters without this package importing internal/metrics directly.
	OnQueueDepth func(n int)
	OnCommand    func(cmdType, status string)

	mu      sync.Mutex
	pq      priorityQueue
	seq     int64
	wake    chan struct{}
	handler map[string]handlerFunc
}

// New builds a Controller. stepUpSecret is the CONTROL_STEPUP_SECRET
// config value; an empty string disables step-up auth entirely. Adapters,
// Backfill, and Settings may be left nil (via the exported fields after
// construction) without panicking: add-symbol and remove-symbol then fail
// with ErrAdapterNotFound, force-backfill fails with a descriptive error,
// add-symbol skips its backfill, and reload-settings succeeds as a no-op.
func New(identitySub string, bus *pubsub.Bus, store *cache.Store, reg *registry.Registry, stepUpSecret string, log *slog.Logger) *Controller {
	c := &Controller{
		IdentitySub: identitySub,
		Bus:         bus,
		Cache:       store,
		Registry:    reg,
		Adapters:    make(map[string]exchange.Adapter),
		StepUp:      NewStepUpChecker(stepUpSecret),
		Log:         log,
		wake:        make(chan struct{}, 1),
	}
	c.handler = map[string]handlerFunc{
		"pause":            c.handlePause,
		"resume":           c.handleResume,
		"reload-settings":  c.handleReloadSettings,
		"switch-mode":      c.handleSwitchMode,
		"add-symbol":       c.handleAddSymbol,
		"remove-symbol":    c.handleRemoveSymbol,
		"force-backfill":   c.handleForceBackfill,
		"clear-cache":      c.handleClearCache,
	}
	heap.Init(&c.pq)
	return c
}

// Run subscribes to this identity's command channel and drives both the
// intake loop (validate, ack/reject, enqueue) and the single-worker
// processing loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	sub, err := c.Bus.Subscribe(ctx, cache.CommandChannel(c.IdentitySub))
	if err != nil {
		return fmt.Errorf("control: subscribe: %w", err)
	}
	defer sub.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.processLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				wg.Wait()
				return nil
			}
			c.intake(ctx, []byte(msg.Payload))
		}
	}
}

// intake validates and either rejects (expired) or acks and enqueues one
// inbound command. Malformed JSON is logged and dropped silently: without
// a correlation id there is nothing to respond to.
func (c *Controller) intake(ctx context.Context, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		if c.Log != nil {
			c.Log.Warn("control: dropping malformed command", "err", err)
		}
		return
	}
	if cmd.CorrelationID == "" {
		if c.Log != nil {
			c.Log.Warn("control: dropping command with no correlation id")
		}
		return
	}

	if commandExpired(cmd.Timestamp, time.Now()) {
		c.respond(ctx, cmd.CorrelationID, "error", nil, ErrCommandExpired.Error())
		return
	}

	c.respond(ctx, cmd.CorrelationID, "ack", nil, "")

	priority := resolvePriority(cmd)

	c.mu.Lock()
	c.seq++
	heap.Push(&c.pq, &queueItem{cmd: cmd, priority: priority, seq: c.seq})
	depth := c.pq.Len()
	c.mu.Unlock()

	if c.OnQueueDepth != nil {
		c.OnQueueDepth(depth)
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// processLoop is the strict single-worker priority processor: it drains
// the queue in priority order, one command at a time, until ctx is done.
func (c *Controller) processLoop(ctx context.Context) {
	for {
		item := c.pop()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-c.wake:
				continue
			}
		}
		c.process(ctx, item.cmd)
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Controller) pop() *queueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pq.Len() == 0 {
		return nil
	}
	return heap.Pop(&c.pq).(*queueItem)
}

func (c *Controller) process(ctx context.Context, cmd Command) {
	ctx = logger.WithCorrelationID(ctx, cmd.CorrelationID)

	h, ok := c.handler[cmd.Type]
	if !ok {
		c.finish(ctx, cmd, "error", nil, ErrUnknownCommand.Error())
		return
	}

	if requiresStepUp(cmd.Type) {
		if err := c.checkStepUp(cmd.Payload); err != nil {
			c.finish(ctx, cmd, "error", nil, err.Error())
			return
		}
	}

	if c.Log != nil {
		c.Log.Debug("control: processing command", append([]any{"type", cmd.Type}, logger.CorrelationAttrs(ctx)...)...)
	}

	data, err := h(ctx, cmd.Payload)
	if err != nil {
		c.finish(ctx, cmd, "error", nil, err.Error())
		return
	}
	c.finish(ctx, cmd, "success", data, "")
}

// finish publishes the terminal response and records the OnCommand metric
// hook, keeping the command type available to the hook without respond
// itself needing to know it.
func (c *Controller) finish(ctx context.Context, cmd Command, status string, data any, message string) {
	c.respond(ctx, cmd.CorrelationID, status, data, message)
	if c.OnCommand != nil {
		c.OnCommand(cmd.Type, status)
	}
}

func requiresStepUp(cmdType string) bool {
	return cmdType == "force-backfill" || cmdType == "clear-cache"
}

type stepUpPayload struct {
	TOTP string `json:"totp"`
}

func (c *Controller) checkStepUp(payload json.RawMessage) error {
	if c.StepUp == nil || !c.StepUp.Enabled() {
		return nil
	}
	var p stepUpPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ErrStepUpRequired
	}
	return c.StepUp.Require(p.TOTP)
}

func (c *Controller) respond(ctx context.Context, correlationID, status string, data any, message string) {
	resp := Response{
		CorrelationID: correlationID,
		Status:        status,
		Data:          data,
		Message:       message,
		Timestamp:     time.Now().UnixMilli(),
	}
	if err := c.Bus.PublishJSON(ctx, cache.ResponseChannel(c.IdentitySub), resp); err != nil && c.Log != nil {
		c.Log.Error("control: publish response failed", "correlationId", correlationID, "status", status, "err", err)
	}
}

// --- command handlers ---

func (c *Controller) handlePause(ctx context.Context, _ json.RawMessage) (any, error) {
	c.Registry.StopAll()
	return nil, nil
}

func (c *Controller) handleResume(ctx context.Context, _ json.RawMessage) (any, error) {
	c.Registry.StartAll(ctx)
	return nil, nil
}

func (c *Controller) handleReloadSettings(ctx context.Context, _ json.RawMessage) (any, error) {
	if c.Settings == nil {
		return nil, nil
	}
	return nil, c.Settings.ReloadSettings(ctx)
}

type switchModePayload struct {
	Mode string `json:"mode"`
}

func (c *Controller) handleSwitchMode(ctx context.Context, payload json.RawMessage) (any, error) {
	var p switchModePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Mode == "" {
		return nil, fmt.Errorf("control: switch-mode requires a mode")
	}
	c.Registry.SetMode(p.Mode)
	return map[string]string{"mode": p.Mode}, nil
}

type symbolPayload struct {
	ExchangeID string `json:"exchangeId"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
}

func (c *Controller) handleAddSymbol(ctx context.Context, payload json.RawMessage) (any, error) {
	var p symbolPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Symbol == "" {
		return nil, fmt.Errorf("control: add-symbol requires exchangeId and symbol")
	}
	adapter, ok := c.Adapters[p.ExchangeID]
	if !ok {
		return nil, ErrAdapterNotFound
	}
	if err := adapter.Subscribe(ctx, []string{p.Symbol}, p.Timeframe); err != nil {
		return nil, fmt.Errorf("control: subscribe: %w", err)
	}
	if c.Backfill != nil {
		if err := c.Backfill.Backfill(ctx, p.ExchangeID, p.Symbol, p.Timeframe); err != nil {
			if c.Log != nil {
				c.Log.Error("control: backfill after add-symbol failed", "symbol", p.Symbol, "err", err)
			}
		}
	}
	return nil, nil
}

func (c *Controller) handleRemoveSymbol(ctx context.Context, payload json.RawMessage) (any, error) {
	var p symbolPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Symbol == "" {
		return nil, fmt.Errorf("control: remove-symbol requires exchangeId and symbol")
	}
	adapter, ok := c.Adapters[p.ExchangeID]
	if !ok {
		return nil, ErrAdapterNotFound
	}
	if err := adapter.Unsubscribe(ctx, []string{p.Symbol}); err != nil {
		return nil, fmt.Errorf("control: unsubscribe: %w", err)
	}
	if c.Cache != nil {
		if _, err := c.Cache.ClearScope(ctx, p.ExchangeID, p.Symbol, ""); err != nil {
			return nil, fmt.Errorf("control: clear symbol state: %w", err)
		}
	}
	return nil, nil
}

func (c *Controller) handleForceBackfill(ctx context.Context, payload json.RawMessage) (any, error) {
	var p symbolPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Symbol == "" || p.Timeframe == "" {
		return nil, fmt.Errorf("control: force-backfill requires exchangeId, symbol, and timeframe")
	}
	if c.Backfill == nil {
		return nil, fmt.Errorf("control: backfill collaborator not configured")
	}
	if err := c.Backfill.Backfill(ctx, p.ExchangeID, p.Symbol, p.Timeframe); err != nil {
		return nil, fmt.Errorf("control: backfill: %w", err)
	}
	return nil, nil
}

type clearCachePayload struct {
	ExchangeID string `json:"exchangeId"`
	Scope      string `json:"scope"` // all | symbol | symbol+tf
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
}

func (c *Controller) handleClearCache(ctx context.Context, payload json.RawMessage) (any, error) {
	var p clearCachePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("control: invalid clear-cache payload: %w", err)
	}
	if c.Cache == nil {
		return nil, fmt.Errorf("control: cache store not configured")
	}

	symbol, tf := "", ""
	switch p.Scope {
	case "all":
	case "symbol":
		symbol = p.Symbol
	case "symbol+tf":
		symbol, tf = p.Symbol, p.Timeframe
	default:
		return nil, fmt.Errorf("control: unknown clear-cache scope %q", p.Scope)
	}
	if (p.Scope == "symbol" || p.Scope == "symbol+tf") && symbol == "" {
		return nil, fmt.Errorf("control: clear-cache scope %q requires a symbol", p.Scope)
	}

	n, err := c.Cache.ClearScope(ctx, p.ExchangeID, symbol, tf)
	if err != nil {
		return nil, fmt.Errorf("control: clear-cache: %w", err)
	}
	return map[string]int{"deletedKeys": n}, nil
}
