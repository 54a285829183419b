package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"Parry-QV/internal/chain"
)

// 链上整数一律以十进制字符串输出，避免 JSON 数字精度丢失。

type projectDTO struct {
	Address                 string `json:"address"`
	Name                    string `json:"name"`
	Description             string `json:"description"`
	MediaHash               string `json:"mediaHash"`
	MediaURL                string `json:"mediaUrl"`
	TokensPerUser           string `json:"tokensPerUser"`
	TokensPerVerifiedUser   string `json:"tokensPerVerifiedUser"`
	MinScoreToJoin          string `json:"minScoreToJoin"`
	MinScoreToJoinDisplay   string `json:"minScoreToJoinDisplay"`
	MinScoreToVerify        string `json:"minScoreToVerify"`
	MinScoreToVerifyDisplay string `json:"minScoreToVerifyDisplay"`
	EndTime                 string `json:"endTime"`
}

type pollDTO struct {
	Index             uint64 `json:"index"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	MediaHash         string `json:"mediaHash"`
	MediaURL          string `json:"mediaUrl"`
	Creator           string `json:"creator"`
	IsActive          bool   `json:"isActive"`
	TotalParticipants string `json:"totalParticipants"`
	TotalVotes        string `json:"totalVotes"`
}

type membershipDTO struct {
	Project              string `json:"project"`
	Wallet               string `json:"wallet"`
	IsRegistered         bool   `json:"isRegistered"`
	IsVerified           bool   `json:"isVerified"`
	TokensLeft           string `json:"tokensLeft"`
	LastScoreCheck       string `json:"lastScoreCheck"`
	PassportScore        string `json:"passportScore"`
	PassportScoreDisplay string `json:"passportScoreDisplay"`
	TotalVotesCast       string `json:"totalVotesCast"`
}

type voteRecordDTO struct {
	Project     string `json:"project"`
	PollIndex   uint64 `json:"pollIndex"`
	Wallet      string `json:"wallet"`
	VotingPower string `json:"votingPower"`
	HasVoted    bool   `json:"hasVoted"`
	IsVerified  bool   `json:"isVerified"`
	Timestamp   string `json:"timestamp"`
}

type passportDTO struct {
	Wallet  string `json:"wallet"`
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

type quoteDTO struct {
	Votes      string `json:"votes"`
	Cost       string `json:"cost"`
	TokensLeft string `json:"tokensLeft,omitempty"`
	Remaining  string `json:"remaining,omitempty"`
	Affordable bool   `json:"affordable"`
}

type sessionDTO struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

type selectAccountRequest struct {
	Address string `json:"address"`
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toProjectDTO(p chain.ProjectSummary) projectDTO {
	return projectDTO{
		Address:                 p.Address.Hex(),
		Name:                    p.Name,
		Description:             p.Description,
		MediaHash:               p.MediaHash,
		MediaURL:                p.MediaURL,
		TokensPerUser:           decimal(p.TokensPerUser),
		TokensPerVerifiedUser:   decimal(p.TokensPerVerifiedUser),
		MinScoreToJoin:          decimal(p.MinScoreToJoin),
		MinScoreToJoinDisplay:   chain.FormatScore(p.MinScoreToJoin),
		MinScoreToVerify:        decimal(p.MinScoreToVerify),
		MinScoreToVerifyDisplay: chain.FormatScore(p.MinScoreToVerify),
		EndTime:                 decimal(p.EndTime),
	}
}

func toPollDTO(p chain.Poll) pollDTO {
	return pollDTO{
		Index:             p.Index,
		Name:              p.Name,
		Description:       p.Description,
		MediaHash:         p.MediaHash,
		MediaURL:          p.MediaURL,
		Creator:           p.Creator.Hex(),
		IsActive:          p.IsActive,
		TotalParticipants: decimal(p.TotalParticipants),
		TotalVotes:        decimal(p.TotalVotes),
	}
}

func toMembershipDTO(project, wallet common.Address, m chain.Membership) membershipDTO {
	return membershipDTO{
		Project:              project.Hex(),
		Wallet:               wallet.Hex(),
		IsRegistered:         m.IsRegistered,
		IsVerified:           m.IsVerified,
		TokensLeft:           decimal(m.TokensLeft),
		LastScoreCheck:       decimal(m.LastScoreCheck),
		PassportScore:        decimal(m.PassportScore),
		PassportScoreDisplay: chain.FormatScore(m.PassportScore),
		TotalVotesCast:       decimal(m.TotalVotesCast),
	}
}

func toVoteRecordDTO(project common.Address, index uint64, wallet common.Address, v chain.VoteRecord) voteRecordDTO {
	return voteRecordDTO{
		Project:     project.Hex(),
		PollIndex:   index,
		Wallet:      wallet.Hex(),
		VotingPower: decimal(v.VotingPower),
		HasVoted:    v.HasVoted,
		IsVerified:  v.IsVerified,
		Timestamp:   decimal(v.Timestamp),
	}
}

func toQuoteDTO(q chain.VoteQuote) quoteDTO {
	dto := quoteDTO{Votes: decimal(q.Votes), Cost: decimal(q.Cost), Affordable: q.Affordable}
	if q.TokensLeft != nil {
		dto.TokensLeft = q.TokensLeft.String()
		dto.Remaining = decimal(q.Remaining)
	}
	return dto
}
