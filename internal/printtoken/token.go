package printtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken 表示打印链接令牌无法解析、签名错误或已过期。
var ErrInvalidToken = errors.New("invalid print token")

const tokenType = "print"

// Claims 是打印链接中携带的业务字段。
type Claims struct {
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data,omitempty"`
	Sample     bool              `json:"sample,omitempty"`
	TokenType  string            `json:"token_type"`
	jwt.RegisteredClaims
}

// Service 签发与校验短期有效的打印链接令牌（HS256）。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService 构造令牌服务。
func NewService(secret string, ttl time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("print token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("print token ttl must be positive")
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL 暴露令牌有效期。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Sign 为某个模板与一份单据数据签发令牌。data 为空且 sample 为 true 时打印示例数据。
func (s *Service) Sign(templateID string, data map[string]string, sample bool) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		TemplateID: templateID,
		Data:       data,
		Sample:     sample,
		TokenType:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   templateID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse 解析并验证令牌。
func (s *Service) Parse(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.TemplateID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
