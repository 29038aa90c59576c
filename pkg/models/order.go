package models

import (
	"time"
)

type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	QuoteSize     float64
	FilledSize    float64
	Status        OrderStatus
	CreatedAt     time.Time
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusSimulated OrderStatus = "simulated"
)

// OrderRequest is a market order sized in quote currency, not in units of the asset.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	QuoteSize     float64
	ClientOrderID string
}
