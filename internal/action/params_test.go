package action

import (
	"math/big"
	"testing"

	xerrors "Parry-QV/internal/errors"
)

const testProject = "0x00000000000000000000000000000000000000aA"

func validProjectParams() Params {
	return Params{
		Name:                  "Parks",
		Description:           "Neighbourhood parks budget",
		MediaHash:             "QmHash",
		TokensPerUser:         100,
		TokensPerVerifiedUser: 200,
		MinScoreToJoin:        1,
		MinScoreToVerify:      7.5,
		EndDays:               7,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		project string
		mutate  func(*Params)
		wantErr bool
	}{
		{name: "create project", kind: KindCreateProject},
		{name: "missing name", kind: KindCreateProject, mutate: func(p *Params) { p.Name = "  " }, wantErr: true},
		{name: "missing description", kind: KindCreateProject, mutate: func(p *Params) { p.Description = "" }, wantErr: true},
		{name: "zero tokens", kind: KindCreateProject, mutate: func(p *Params) { p.TokensPerUser = 0 }, wantErr: true},
		{name: "zero verified tokens", kind: KindCreateProject, mutate: func(p *Params) { p.TokensPerVerifiedUser = 0 }, wantErr: true},
		{name: "zero days", kind: KindCreateProject, mutate: func(p *Params) { p.EndDays = 0 }, wantErr: true},
		{name: "negative score", kind: KindCreateProject, mutate: func(p *Params) { p.MinScoreToJoin = -1 }, wantErr: true},
		{name: "zero scores allowed", kind: KindCreateProject, mutate: func(p *Params) { p.MinScoreToJoin, p.MinScoreToVerify = 0, 0 }},
		{name: "create poll", kind: KindCreatePoll, project: testProject},
		{name: "poll without project", kind: KindCreatePoll, wantErr: true},
		{name: "poll with bad project", kind: KindCreatePoll, project: "0x1234", wantErr: true},
		{name: "join", kind: KindJoinProject, project: testProject},
		{name: "vote", kind: KindCastVote, project: testProject, mutate: func(p *Params) { p.Votes = 3 }},
		{name: "zero vote", kind: KindCastVote, project: testProject, mutate: func(p *Params) { p.Votes = 0 }},
		{name: "negative vote", kind: KindCastVote, project: testProject, mutate: func(p *Params) { p.Votes = -2 }, wantErr: true},
		{name: "unknown kind", kind: "burn", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validProjectParams()
			if tc.mutate != nil {
				tc.mutate(&params)
			}
			err := Validate(tc.kind, tc.project, params)
			if tc.wantErr {
				if xerrors.CodeOf(err) != CodeValidationFailed {
					t.Fatalf("expected VALIDATION_FAILED, got %v", err)
				}
				if xerrors.UserMessage(err) == "" {
					t.Fatalf("expected a non-empty message")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateNamesFields(t *testing.T) {
	params := validProjectParams()
	params.EndDays = 0
	err := Validate(KindCreateProject, "", params)
	if got := xerrors.UserMessage(err); got != "endDays must be at least 1" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestEndTime(t *testing.T) {
	got := EndTime(big.NewInt(1_700_000_000), 7)
	want := big.NewInt(1_700_000_000 + 7*86400)
	if got.Cmp(want) != 0 {
		t.Fatalf("EndTime = %s, want %s", got, want)
	}
}
