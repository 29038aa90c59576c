package models

import (
	"time"
)

type Ticker struct {
	Symbol    string
	LastPrice float64
	Timestamp time.Time
}

// Position is a read-only snapshot of the account's holding in one symbol.
// The zero value means no open position.
type Position struct {
	Symbol            string
	Size              float64
	AverageEntryPrice float64
}
