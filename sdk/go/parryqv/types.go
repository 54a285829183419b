package parryqv

// Project is a project summary. Integer fields are decimal strings.
type Project struct {
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

// Poll is one proposal inside a project.
type Poll struct {
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

// Membership is a wallet's standing in a project.
type Membership struct {
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

// VoteRecord is a wallet's vote on a poll. VotingPower may be negative.
type VoteRecord struct {
	Project     string `json:"project"`
	PollIndex   uint64 `json:"pollIndex"`
	Wallet      string `json:"wallet"`
	VotingPower string `json:"votingPower"`
	HasVoted    bool   `json:"hasVoted"`
	IsVerified  bool   `json:"isVerified"`
	Timestamp   string `json:"timestamp"`
}

// PassportScore is a raw score and its two-decimal display form.
type PassportScore struct {
	Wallet  string `json:"wallet"`
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

// Quote previews the quadratic cost of a vote.
type Quote struct {
	Votes      string `json:"votes"`
	Cost       string `json:"cost"`
	TokensLeft string `json:"tokensLeft,omitempty"`
	Remaining  string `json:"remaining,omitempty"`
	Affordable bool   `json:"affordable"`
}

// Session reports the gateway wallet's connection state.
type Session struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Action kinds accepted by SubmitAction.
const (
	KindCreateProject = "create_project"
	KindCreatePoll    = "create_poll"
	KindJoinProject   = "join_project"
	KindCastVote      = "cast_vote"
)

// Terminal action statuses.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// ActionParams carries the kind-specific arguments of an action.
type ActionParams struct {
	Name                  string  `json:"name,omitempty"`
	Description           string  `json:"description,omitempty"`
	MediaHash             string  `json:"mediaHash,omitempty"`
	TokensPerUser         uint64  `json:"tokensPerUser,omitempty"`
	TokensPerVerifiedUser uint64  `json:"tokensPerVerifiedUser,omitempty"`
	MinScoreToJoin        float64 `json:"minScoreToJoin,omitempty"`
	MinScoreToVerify      float64 `json:"minScoreToVerify,omitempty"`
	EndDays               uint64  `json:"endDays,omitempty"`
	PollIndex             uint64  `json:"pollIndex,omitempty"`
	Votes                 int64   `json:"votes,omitempty"`
}

// ActionRequest submits a mutation. ID makes the submission idempotent.
type ActionRequest struct {
	ID      string       `json:"id,omitempty"`
	Kind    string       `json:"kind"`
	Project string       `json:"project,omitempty"`
	Params  ActionParams `json:"params"`
}

// ActionResult is the accepted outcome of a confirmed action.
type ActionResult struct {
	Strategy    string `json:"strategy"`
	Sender      string `json:"sender"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// Action is the server-side record of a submitted mutation.
type Action struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Project   string        `json:"project,omitempty"`
	Params    ActionParams  `json:"params"`
	Status    string        `json:"status"`
	ErrorCode string        `json:"errorCode,omitempty"`
	LastError string        `json:"lastError,omitempty"`
	Result    *ActionResult `json:"result,omitempty"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

// Finished reports whether the action reached a terminal status.
func (a Action) Finished() bool {
	return a.Status == StatusConfirmed || a.Status == StatusFailed
}

// ActionStats aggregates action counts.
type ActionStats struct {
	Total           int            `json:"total"`
	Idle            int            `json:"idle"`
	InFlight        int            `json:"inFlight"`
	Confirmed       int            `json:"confirmed"`
	Failed          int            `json:"failed"`
	ByKind          map[string]int `json:"byKind,omitempty"`
	OldestUpdatedAt int64          `json:"oldestUpdatedAt,omitempty"`
	NewestUpdatedAt int64          `json:"newestUpdatedAt,omitempty"`
}

// ActionFilter narrows ListActions and ActionStats.
type ActionFilter struct {
	Statuses  []string
	Kinds     []string
	Project   string
	Limit     int
	Offset    int
	Ascending bool
}

// Media describes a pinned upload.
type Media struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}
