package action

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	xerrors "Parry-QV/internal/errors"
)

// Params 汇总所有动作类型的参数，按 Kind 取用其中的字段。
type Params struct {
	Name                  string  `json:"name,omitempty" bson:"name,omitempty"`
	Description           string  `json:"description,omitempty" bson:"description,omitempty"`
	MediaHash             string  `json:"mediaHash,omitempty" bson:"media_hash,omitempty"`
	TokensPerUser         uint64  `json:"tokensPerUser,omitempty" bson:"tokens_per_user,omitempty"`
	TokensPerVerifiedUser uint64  `json:"tokensPerVerifiedUser,omitempty" bson:"tokens_per_verified_user,omitempty"`
	MinScoreToJoin        float64 `json:"minScoreToJoin,omitempty" bson:"min_score_to_join,omitempty"`
	MinScoreToVerify      float64 `json:"minScoreToVerify,omitempty" bson:"min_score_to_verify,omitempty"`
	EndDays               uint64  `json:"endDays,omitempty" bson:"end_days,omitempty"`
	PollIndex             uint64  `json:"pollIndex,omitempty" bson:"poll_index,omitempty"`
	Votes                 int64   `json:"votes,omitempty" bson:"votes,omitempty"`
}

type createProjectInput struct {
	Name                  string  `json:"name" validate:"required,max=256"`
	Description           string  `json:"description" validate:"required"`
	MediaHash             string  `json:"mediaHash"`
	TokensPerUser         uint64  `json:"tokensPerUser" validate:"gt=0"`
	TokensPerVerifiedUser uint64  `json:"tokensPerVerifiedUser" validate:"gt=0"`
	MinScoreToJoin        float64 `json:"minScoreToJoin" validate:"gte=0"`
	MinScoreToVerify      float64 `json:"minScoreToVerify" validate:"gte=0"`
	EndDays               uint64  `json:"endDays" validate:"gte=1"`
}

type createPollInput struct {
	Project     string `json:"project" validate:"required,eth_addr"`
	Name        string `json:"name" validate:"required,max=256"`
	Description string `json:"description" validate:"required"`
	MediaHash   string `json:"mediaHash"`
}

type joinProjectInput struct {
	Project string `json:"project" validate:"required,eth_addr"`
}

type castVoteInput struct {
	Project   string `json:"project" validate:"required,eth_addr"`
	PollIndex uint64 `json:"pollIndex"`
	Votes     int64  `json:"votes" validate:"gte=0"`
}

var paramsValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate 对请求做本地校验，不触发任何网络调用。
func Validate(kind Kind, project string, params Params) error {
	var input any
	switch kind {
	case KindCreateProject:
		input = createProjectInput{
			Name:                  strings.TrimSpace(params.Name),
			Description:           strings.TrimSpace(params.Description),
			MediaHash:             params.MediaHash,
			TokensPerUser:         params.TokensPerUser,
			TokensPerVerifiedUser: params.TokensPerVerifiedUser,
			MinScoreToJoin:        params.MinScoreToJoin,
			MinScoreToVerify:      params.MinScoreToVerify,
			EndDays:               params.EndDays,
		}
	case KindCreatePoll:
		input = createPollInput{
			Project:     strings.TrimSpace(project),
			Name:        strings.TrimSpace(params.Name),
			Description: strings.TrimSpace(params.Description),
			MediaHash:   params.MediaHash,
		}
	case KindJoinProject:
		input = joinProjectInput{Project: strings.TrimSpace(project)}
	case KindCastVote:
		input = castVoteInput{
			Project:   strings.TrimSpace(project),
			PollIndex: params.PollIndex,
			Votes:     params.Votes,
		}
	default:
		return xerrors.New(CodeValidationFailed, fmt.Sprintf("不支持的动作类型 %q", kind))
	}
	if err := paramsValidator.Struct(input); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return xerrors.Wrap(CodeValidationFailed, err, "参数校验失败")
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return xerrors.New(CodeValidationFailed, strings.Join(problems, "; "),
		xerrors.WithMetadata("field", fieldErrs[0].Field()))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "eth_addr":
		return fmt.Sprintf("%s must be a hex address", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
