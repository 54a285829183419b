package chain

import (
	"math"
	"math/big"
)

// ScoreScale is the fixed-point factor of on-chain passport scores.
const ScoreScale = 10000

var scoreScale = big.NewInt(ScoreScale)

// QuadraticCost returns votes², the token cost of casting votes.
func QuadraticCost(votes *big.Int) *big.Int {
	if votes == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(votes, votes)
}

// FormatScore renders a raw score as raw/10000 with two decimals.
func FormatScore(raw *big.Int) string {
	if raw == nil {
		return "0.00"
	}
	return new(big.Rat).SetFrac(raw, scoreScale).FloatString(2)
}

// ScaleScore converts a human score (e.g. 7.5) to its on-chain integer.
func ScaleScore(score float64) *big.Int {
	return big.NewInt(int64(math.Round(score * ScoreScale)))
}

// VoteQuote previews the cost of a vote against a token balance. The
// contract remains the only enforcer of the allocation.
type VoteQuote struct {
	Votes      *big.Int `json:"votes"`
	Cost       *big.Int `json:"cost"`
	TokensLeft *big.Int `json:"tokensLeft,omitempty"`
	Remaining  *big.Int `json:"remaining,omitempty"`
	Affordable bool     `json:"affordable"`
}

// Quote computes the cost of votes and, when tokensLeft is known, what
// would remain afterwards.
func Quote(votes, tokensLeft *big.Int) VoteQuote {
	cost := QuadraticCost(votes)
	q := VoteQuote{Votes: votes, Cost: cost, Affordable: true}
	if tokensLeft != nil {
		q.TokensLeft = tokensLeft
		q.Remaining = new(big.Int).Sub(tokensLeft, cost)
		q.Affordable = q.Remaining.Sign() >= 0
	}
	return q
}
