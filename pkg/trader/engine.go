package trader

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/fomo-trader/pkg/fomo"
	"github.com/gregtusar/fomo-trader/pkg/models"
	"github.com/gregtusar/fomo-trader/pkg/risk"
	"github.com/gregtusar/fomo-trader/pkg/strategy"
	"github.com/sirupsen/logrus"
)

// Action is the final decision of a cycle after risk arbitration. It shares labels
// with strategy.Signal but is a separate type: a signal is only an input.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusCooldown Status = "cooldown"
)

// EvaluationResult reports one cycle. Price is nil only for a cooldown cycle that
// fetched nothing.
type EvaluationResult struct {
	Status Status          `json:"status"`
	Action Action          `json:"action,omitempty"`
	Price  *float64        `json:"price,omitempty"`
	Signal strategy.Signal `json:"signal,omitempty"`
}

type ExecutionResult struct {
	Action        Action        `json:"action"`
	Symbol        string        `json:"symbol"`
	QuoteSize     float64       `json:"quote_size"`
	ClientOrderID string        `json:"client_order_id"`
	DryRun        bool          `json:"dry_run"`
	Order         *models.Order `json:"-"`
}

type Config struct {
	Symbol    string
	QuoteSize float64
	Cooldown  time.Duration
	DryRun    bool
	// ObserveDuringCooldown feeds prices into the signal window during cooldown
	// cycles instead of skipping the fetch entirely.
	ObserveDuringCooldown bool
}

type Snapshot struct {
	Symbol            string          `json:"symbol"`
	DryRun            bool            `json:"dry_run"`
	WindowSize        int             `json:"window_size"`
	ShortWindow       int             `json:"short_window"`
	LongWindow        int             `json:"long_window"`
	Risk              risk.Parameters `json:"-"`
	LastTradeAt       *time.Time      `json:"last_trade_at,omitempty"`
	CooldownRemaining time.Duration   `json:"-"`
}

// Engine owns the price window and cooldown state. Every entry point takes mu for
// the whole cycle, including the blocking client calls.
type Engine struct {
	client  fomo.Client
	signals *strategy.Momentum
	gate    *risk.Gate
	cfg     Config
	logger  *logrus.Logger

	mu        sync.Mutex
	lastTrade time.Time

	now        func() time.Time
	newOrderID func() string
}

func NewEngine(client fomo.Client, signals *strategy.Momentum, gate *risk.Gate, cfg Config, logger *logrus.Logger) *Engine {
	return &Engine{
		client:     client,
		signals:    signals,
		gate:       gate,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		newOrderID: uuid.NewString,
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate runs one decision cycle. Collaborator failures abort the cycle and are
// returned as *CollaboratorError; a price already added to the window stays there.
func (e *Engine) Evaluate(ctx context.Context) (*EvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.now()
	if e.inCooldown(started) {
		return e.observeCooldown(ctx)
	}

	price, err := e.client.GetLastPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, &CollaboratorError{Op: "get last price", Err: err}
	}

	position, err := e.client.GetPosition(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, &CollaboratorError{Op: "get position", Err: err}
	}
	if position == nil {
		position = &models.Position{Symbol: e.cfg.Symbol}
	}

	signal := e.signals.Update(price)
	action := e.decide(*position, price, signal)

	e.logger.WithFields(logrus.Fields{
		"symbol":         e.cfg.Symbol,
		"price":          price,
		"signal":         signal,
		"position_size":  position.Size,
		"position_entry": position.AverageEntryPrice,
		"action":         action,
	}).Info("Evaluated market")

	if action != ActionHold {
		if _, err := e.execute(ctx, action); err != nil {
			return nil, err
		}
		e.lastTrade = started
	}

	return &EvaluationResult{
		Status: StatusOK,
		Action: action,
		Price:  &price,
		Signal: signal,
	}, nil
}

// ForceTrade executes action without consulting the signal or the risk gate.
// It ignores the cooldown but records the trade time so the loop backs off afterwards.
func (e *Engine) ForceTrade(ctx context.Context, action Action) (*ExecutionResult, error) {
	if action != ActionBuy && action != ActionSell {
		return nil, &ValidationError{Value: string(action)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.now()
	result, err := e.execute(ctx, action)
	if err != nil {
		return nil, err
	}
	e.lastTrade = started

	e.logger.WithFields(logrus.Fields{
		"symbol": e.cfg.Symbol,
		"action": action,
	}).Warn("Forced trade executed")
	return result, nil
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Symbol:      e.cfg.Symbol,
		DryRun:      e.cfg.DryRun,
		WindowSize:  e.signals.Len(),
		ShortWindow: e.signals.ShortWindow(),
		LongWindow:  e.signals.LongWindow(),
		Risk:        e.gate.Parameters(),
	}
	if !e.lastTrade.IsZero() {
		last := e.lastTrade
		snap.LastTradeAt = &last
		if remaining := e.cfg.Cooldown - e.now().Sub(last); remaining > 0 {
			snap.CooldownRemaining = remaining
		}
	}
	return snap
}

// decide applies the ordered decision chain: a risk exit beats any signal.
func (e *Engine) decide(position models.Position, price float64, signal strategy.Signal) Action {
	switch {
	case e.gate.RequiresSell(position, price):
		return ActionSell
	case signal == strategy.SignalBuy && e.gate.AllowsBuy(position):
		return ActionBuy
	case signal == strategy.SignalSell && position.Size > 0:
		return ActionSell
	default:
		return ActionHold
	}
}

func (e *Engine) inCooldown(now time.Time) bool {
	return !e.lastTrade.IsZero() && now.Sub(e.lastTrade) < e.cfg.Cooldown
}

func (e *Engine) observeCooldown(ctx context.Context) (*EvaluationResult, error) {
	if !e.cfg.ObserveDuringCooldown {
		return &EvaluationResult{Status: StatusCooldown}, nil
	}

	price, err := e.client.GetLastPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, &CollaboratorError{Op: "get last price", Err: err}
	}
	signal := e.signals.Update(price)

	e.logger.WithFields(logrus.Fields{
		"symbol": e.cfg.Symbol,
		"price":  price,
		"signal": signal,
	}).Debug("Observed price during cooldown")

	return &EvaluationResult{
		Status: StatusCooldown,
		Price:  &price,
		Signal: signal,
	}, nil
}

func (e *Engine) execute(ctx context.Context, action Action) (*ExecutionResult, error) {
	req := &models.OrderRequest{
		Symbol:        e.cfg.Symbol,
		Side:          models.OrderSide(action),
		Type:          models.OrderTypeMarket,
		QuoteSize:     e.cfg.QuoteSize,
		ClientOrderID: e.newOrderID(),
	}

	result := &ExecutionResult{
		Action:        action,
		Symbol:        req.Symbol,
		QuoteSize:     req.QuoteSize,
		ClientOrderID: req.ClientOrderID,
		DryRun:        e.cfg.DryRun,
	}

	fields := logrus.Fields{
		"symbol":          req.Symbol,
		"side":            req.Side,
		"quote_size":      req.QuoteSize,
		"client_order_id": req.ClientOrderID,
	}

	if e.cfg.DryRun {
		result.Order = &models.Order{
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Type:          req.Type,
			QuoteSize:     req.QuoteSize,
			Status:        models.OrderStatusSimulated,
			CreatedAt:     e.now(),
		}
		e.logger.WithFields(fields).Info("[dry-run] Order simulated")
		return result, nil
	}

	order, err := e.client.PlaceMarketOrder(ctx, req)
	if err != nil {
		e.logger.WithError(err).WithFields(fields).Error("Failed to place order")
		return nil, &CollaboratorError{Op: "place market order", Err: err}
	}

	result.Order = order
	if order != nil {
		fields["order_id"] = order.OrderID
	}
	e.logger.WithFields(fields).Info("Order placed")
	return result, nil
}
