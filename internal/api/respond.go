package api

import (
	"encoding/json"
	"net/http"

	xerrors "Parry-QV/internal/errors"
)

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 将统一错误转换为 {"error":{"code","message"}} 响应，message 保证非空。
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{
		Code:    string(xerrors.CodeOf(err)),
		Message: xerrors.UserMessage(err),
	}
	if tagged, ok := xerrors.From(err); ok {
		body.Metadata = tagged.Metadata()
	}
	writeJSON(w, xerrors.HTTPStatusOf(err), map[string]errorBody{"error": body})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, xerrors.New(xerrors.CodeInvalidArgument, message))
}

func unavailable(w http.ResponseWriter, component string) {
	writeError(w, xerrors.New(xerrors.CodeInitializationFailure, component+" 未配置"))
}
