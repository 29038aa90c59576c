package trader

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/gregtusar/fomo-trader/pkg/models"
	"github.com/gregtusar/fomo-trader/pkg/risk"
	"github.com/gregtusar/fomo-trader/pkg/strategy"
	"github.com/sirupsen/logrus"
)

var errUpstream = errors.New("upstream unavailable")

// fakeClient serves prices in order, repeating the last one once exhausted.
type fakeClient struct {
	mu sync.Mutex

	prices   []float64
	position models.Position

	priceErr    error
	positionErr error
	orderErr    error

	// entered is signalled and release awaited inside GetLastPrice when set
	entered chan struct{}
	release chan struct{}

	priceCalls    int
	positionCalls int
	orders        []models.OrderRequest
}

func (f *fakeClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	if len(f.prices) == 0 {
		return 0, errors.New("no prices configured")
	}
	price := f.prices[0]
	if len(f.prices) > 1 {
		f.prices = f.prices[1:]
	}
	return price, nil
}

func (f *fakeClient) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionCalls++
	if f.positionErr != nil {
		return nil, f.positionErr
	}
	pos := f.position
	pos.Symbol = symbol
	return &pos, nil
}

func (f *fakeClient) PlaceMarketOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, *order)
	return &models.Order{
		OrderID:       "order-" + order.ClientOrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Type:          order.Type,
		QuoteSize:     order.QuoteSize,
		Status:        models.OrderStatusFilled,
	}, nil
}

func (f *fakeClient) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeClient) calls() (price, position int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls, f.positionCalls
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineOptions struct {
	short, long int
	cfg         Config
	params      risk.Parameters
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		short: 1,
		long:  3,
		cfg: Config{
			Symbol:    "BTC-USD",
			QuoteSize: 25,
			Cooldown:  30 * time.Second,
		},
		params: risk.Parameters{
			MaxPositionSize: 0.01,
			StopLossPct:     0.02,
			TakeProfitPct:   0.03,
		},
	}
}

func newTestEngine(client *fakeClient, opts engineOptions, clock *fakeClock) *Engine {
	signals, err := strategy.NewMomentum(opts.short, opts.long)
	if err != nil {
		panic(err)
	}

	engine := NewEngine(client, signals, risk.NewGate(opts.params), opts.cfg, testLogger())
	if clock != nil {
		engine.now = clock.Now
	}

	var mu sync.Mutex
	seq := 0
	engine.newOrderID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return "id-" + strconv.Itoa(seq)
	}
	return engine
}
