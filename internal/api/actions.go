package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"Parry-QV/internal/action"
)

const maxActionBody = 1 << 20

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		unavailable(w, "动作服务")
		return
	}
	var req action.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		badRequest(w, "请求体解析失败: "+err.Error())
		return
	}
	submitted, err := s.actions.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleActionDetail(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		unavailable(w, "动作服务")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		badRequest(w, "缺少动作 ID")
		return
	}
	found, err := s.actions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		unavailable(w, "动作服务")
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	list, err := s.actions.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleActionStats(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		unavailable(w, "动作服务")
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	stats, err := s.actions.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOptions 解析 status、kind、project、limit、offset 与 order 查询参数。
func listOptions(w http.ResponseWriter, r *http.Request) ([]action.ListOption, bool) {
	query := r.URL.Query()
	var opts []action.ListOption

	if raw := query.Get("status"); raw != "" {
		var statuses []action.Status
		for _, part := range strings.Split(raw, ",") {
			status := action.Status(strings.TrimSpace(part))
			if !action.IsValidStatus(status) {
				badRequest(w, "未知的动作状态: "+part)
				return nil, false
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, action.WithStatuses(statuses...))
	}
	if raw := query.Get("kind"); raw != "" {
		var kinds []action.Kind
		for _, part := range strings.Split(raw, ",") {
			kind := action.Kind(strings.TrimSpace(part))
			if !action.IsValidKind(kind) {
				badRequest(w, "未知的动作类型: "+part)
				return nil, false
			}
			kinds = append(kinds, kind)
		}
		opts = append(opts, action.WithKinds(kinds...))
	}
	if project := query.Get("project"); project != "" {
		opts = append(opts, action.WithProject(project))
	}
	for name, apply := range map[string]func(int) action.ListOption{
		"limit":  action.WithLimit,
		"offset": action.WithOffset,
	} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			badRequest(w, name+" 必须是非负整数")
			return nil, false
		}
		opts = append(opts, apply(value))
	}
	if strings.EqualFold(query.Get("order"), "asc") {
		opts = append(opts, action.WithSortOrder(action.SortByUpdatedAsc))
	}
	return opts, true
}
