package auth

import (
	"net/http"
	"strings"

	xerrors "Parry-QV/internal/errors"
)

// 网关使用的权限名称。
const (
	PermissionSubmit  = "actions:submit"
	PermissionMedia   = "media:upload"
	PermissionSession = "session:connect"
	// PermissionAll 授予全部权限。
	PermissionAll = "*"
)

// 认证相关错误码。
const (
	CodeUnauthenticated  xerrors.Code = "UNAUTHENTICATED"
	CodePermissionDenied xerrors.Code = "PERMISSION_DENIED"
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{
		Message:    "missing or invalid api key",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusUnauthorized,
	})
	xerrors.Register(CodePermissionDenied, xerrors.Attributes{
		Message:    "permission denied",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusForbidden,
	})
}

// KeyConfig 描述一个 API Key 及其权限，Permissions 为空时授予全部权限。
type KeyConfig struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	Permissions []string `json:"permissions"`
}

// Subject 是通过认证的调用方。
type Subject struct {
	Name        string
	Permissions []string

	permissionsSet map[string]struct{}
}

func newSubject(name string, permissions []string) *Subject {
	s := &Subject{Name: name, Permissions: append([]string(nil), permissions...)}
	s.permissionsSet = make(map[string]struct{}, len(permissions))
	for _, perm := range permissions {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
	if len(permissions) == 0 {
		s.permissionsSet[PermissionAll] = struct{}{}
	}
	return s
}

// HasPermission 判断调用方是否拥有指定权限。
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.permissionsSet[PermissionAll]; ok {
		return true
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize 要求调用方拥有全部 perms。
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return xerrors.New(CodeUnauthenticated, "")
	}
	for _, perm := range perms {
		if perm == "" {
			continue
		}
		if !s.HasPermission(perm) {
			return xerrors.New(CodePermissionDenied, "missing permission "+perm,
				xerrors.WithMetadata("permission", perm))
		}
	}
	return nil
}
