package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"hedera-agent-kit/pkg/logger"
)

type tokenEntry struct {
	digest  [sha256.Size]byte
	subject Subject
}

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode   Mode
	tokens []tokenEntry
	audit  *slog.Logger
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeToken:
	default:
		return nil, fmt.Errorf("不支持的认证模式: %s", cfg.Mode)
	}

	for _, raw := range cfg.Tokens {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		perms := []string{PermissionRead, PermissionWrite}
		if strings.HasPrefix(raw, ReadOnlyPrefix) {
			raw = strings.TrimPrefix(raw, ReadOnlyPrefix)
			perms = []string{PermissionRead}
		}
		digest := sha256.Sum256([]byte(raw))
		svc.tokens = append(svc.tokens, tokenEntry{
			digest: digest,
			subject: Subject{
				Username:    "token-" + hex.EncodeToString(digest[:4]),
				Permissions: perms,
			},
		})
	}
	if len(svc.tokens) == 0 {
		return nil, errors.New("token 模式至少需要配置一个令牌")
	}
	return svc, nil
}

// Enabled 判断是否启用了认证。
func (s *Service) Enabled() bool {
	return s != nil && s.mode != ModeDisabled
}

// AuthenticateRequest 校验 Authorization 头中的 Bearer 令牌。
func (s *Service) AuthenticateRequest(_ context.Context, header string) (*Subject, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	for _, entry := range s.tokens {
		if subtle.ConstantTimeCompare(digest[:], entry.digest[:]) == 1 {
			subject := entry.subject
			subject.Permissions = append([]string(nil), entry.subject.Permissions...)
			subject.permissionsSet = nil
			return &subject, nil
		}
	}
	return nil, ErrInvalidToken
}
