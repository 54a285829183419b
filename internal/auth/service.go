package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	xerrors "Parry-QV/internal/errors"
	loggerpkg "Parry-QV/pkg/logger"
)

type credential struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// Service 校验 API Key。未配置任何 Key 时认证关闭。
type Service struct {
	credentials []credential
	audit       *slog.Logger
}

// NewService 根据配置构造认证服务，Key 不能为空或重复。
func NewService(keys []KeyConfig) (*Service, error) {
	s := &Service{audit: loggerpkg.Audit()}
	seen := make(map[[sha256.Size]byte]string, len(keys))
	for i, key := range keys {
		raw := strings.TrimSpace(key.Key)
		if raw == "" {
			return nil, fmt.Errorf("第 %d 个 API Key 为空", i+1)
		}
		name := strings.TrimSpace(key.Name)
		if name == "" {
			name = fmt.Sprintf("key-%d", i+1)
		}
		digest := sha256.Sum256([]byte(raw))
		if other, dup := seen[digest]; dup {
			return nil, fmt.Errorf("API Key %s 与 %s 重复", name, other)
		}
		seen[digest] = name
		s.credentials = append(s.credentials, credential{
			digest:  digest,
			subject: newSubject(name, key.Permissions),
		})
	}
	return s, nil
}

// Enabled 判断是否需要认证。
func (s *Service) Enabled() bool {
	return s != nil && len(s.credentials) > 0
}

// Authenticate 从 Authorization（Bearer）或 X-API-Key 头解析调用方。
func (s *Service) Authenticate(authorization, apiKey string) (*Subject, error) {
	raw := strings.TrimSpace(apiKey)
	if raw == "" {
		header := strings.TrimSpace(authorization)
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			raw = strings.TrimSpace(header[7:])
		}
	}
	if raw == "" {
		return nil, xerrors.New(CodeUnauthenticated, "missing api key")
	}

	digest := sha256.Sum256([]byte(raw))
	var found *Subject
	for _, c := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], c.digest[:]) == 1 {
			found = c.subject
		}
	}
	if found == nil {
		return nil, xerrors.New(CodeUnauthenticated, "invalid api key")
	}
	return found, nil
}
