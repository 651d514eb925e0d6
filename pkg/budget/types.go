// Package budget decides whether an agent should buy a $address at its
// current price. Evaluation is advisory and never moves funds.
package budget

import (
	"time"
)

// Recommendation is the outcome of an evaluation.
type Recommendation string

const (
	Acquire           Recommendation = "acquire"
	Skip              Recommendation = "skip"
	InsufficientFunds Recommendation = "insufficient_funds"
	AlreadyOwned      Recommendation = "already_owned"
)

// Decision is the result of an evaluation.
type Decision struct {
	Address         string         `json:"dollarAddress"`
	CurrentPrice    int64          `json:"currentPrice"`
	Recommendation  Recommendation `json:"recommendation"`
	Reasoning       string         `json:"reasoning"`
	BudgetRemaining int64          `json:"budgetRemaining"`
	ExpectedROI     *float64       `json:"expectedROI,omitempty"`
	Receipt         *Receipt       `json:"receipt,omitempty"`
}

// Receipt records the inputs behind a Decision.
type Receipt struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	Address        string         `json:"address"`
	Recommendation Recommendation `json:"recommendation"`
	Price          int64          `json:"price"`
	Ceiling        int64          `json:"ceiling"`
	Balance        int64          `json:"balance"`
	Reason         string         `json:"reason"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Account is the read side of a wallet the evaluator needs.
type Account interface {
	ID() string
	Balance() int64
	Holds(address string) bool
}
