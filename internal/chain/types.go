package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ProjectSummary is the view model of one project contract.
type ProjectSummary struct {
	Address               common.Address `json:"address"`
	Name                  string         `json:"name"`
	Description           string         `json:"description"`
	MediaHash             string         `json:"mediaHash"`
	MediaURL              string         `json:"mediaUrl"`
	TokensPerUser         *big.Int       `json:"tokensPerUser"`
	TokensPerVerifiedUser *big.Int       `json:"tokensPerVerifiedUser"`
	MinScoreToJoin        *big.Int       `json:"minScoreToJoin"`
	MinScoreToVerify      *big.Int       `json:"minScoreToVerify"`
	EndTime               *big.Int       `json:"endTime"`
}

// Poll is one proposal inside a project.
type Poll struct {
	Index             uint64         `json:"index"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	MediaHash         string         `json:"mediaHash"`
	MediaURL          string         `json:"mediaUrl"`
	Creator           common.Address `json:"creator"`
	IsActive          bool           `json:"isActive"`
	TotalParticipants *big.Int       `json:"totalParticipants"`
	TotalVotes        *big.Int       `json:"totalVotes"`
}

// Membership is a wallet's standing in a project.
type Membership struct {
	IsRegistered   bool     `json:"isRegistered"`
	IsVerified     bool     `json:"isVerified"`
	TokensLeft     *big.Int `json:"tokensLeft"`
	LastScoreCheck *big.Int `json:"lastScoreCheck"`
	PassportScore  *big.Int `json:"passportScore"`
	TotalVotesCast *big.Int `json:"totalVotesCast"`
}

// VoteRecord is a wallet's vote on one poll. VotingPower is signed.
type VoteRecord struct {
	VotingPower *big.Int `json:"votingPower"`
	HasVoted    bool     `json:"hasVoted"`
	IsVerified  bool     `json:"isVerified"`
	Timestamp   *big.Int `json:"timestamp"`
}

// PassportScore is a raw on-chain score with its display form.
type PassportScore struct {
	Raw     *big.Int `json:"raw"`
	Display string   `json:"display"`
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
