package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims 会话声明
type Claims struct {
	UserID   int64  `json:"user_id"`
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Provider 当前用户身份来源
// 消息核心只读取身份，从不修改
type Provider interface {
	CurrentUserID(tokenString string) (int64, error)
}

// Service 基于签名 Token 的身份提供者
type Service struct {
	secretKey    []byte
	accessExpire time.Duration
}

// NewService 创建身份服务
func NewService(secretKey string, accessExpire time.Duration) *Service {
	return &Service{
		secretKey:    []byte(secretKey),
		accessExpire: accessExpire,
	}
}

// GenerateToken 签发会话 Token
func (s *Service) GenerateToken(userID int64, deviceID string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessExpire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-core",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Validate 验证 Token 并返回声明
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// CurrentUserID 实现 Provider
func (s *Service) CurrentUserID(tokenString string) (int64, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
