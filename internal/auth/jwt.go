// Package auth 提供令牌能力的底层实现。
// 沙箱内的 getToken/parseToken 能力基于 JWT（HS256），
// 载荷是任意声明表，由函数代码自行约定结构。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 定义 JWT 相关的错误类型
var (
	// ErrInvalidToken 表示提供的令牌无效或格式错误
	ErrInvalidToken = errors.New("invalid token")
)

// JWTManager 是 JWT 令牌管理器，负责令牌的签发和解析。
// 它封装了 JWT 的密钥和过期时间配置。
type JWTManager struct {
	// secret 是用于签名和验证 JWT 的密钥
	secret []byte
	// expiration 定义令牌的有效期时长
	expiration time.Duration
}

// NewJWTManager 创建并返回一个新的 JWT 管理器实例。
// 参数:
//   - secret: JWT 签名密钥，应该是一个安全的随机字符串
//   - expiration: 令牌的有效期时长
//
// 返回:
//   - *JWTManager: 初始化后的 JWT 管理器
func NewJWTManager(secret string, expiration time.Duration) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Sign 以给定的声明表签发一个 JWT 令牌。
// 声明中未携带 exp 时使用配置的默认有效期。
// 参数:
//   - payload: 任意声明表，由调用方自行约定结构
//
// 返回:
//   - string: 签发的 JWT 令牌字符串
//   - error: 如果签发失败则返回错误
func (m *JWTManager) Sign(payload map[string]interface{}) (string, error) {
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(m.expiration))
	}
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = jwt.NewNumericDate(time.Now())
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse 验证 JWT 令牌并返回其中的声明表。
// 参数:
//   - tokenStr: 需要验证的 JWT 令牌字符串
//
// 返回:
//   - map[string]interface{}: 如果验证成功，返回令牌中的声明表
//   - error: 如果令牌无效或已过期，返回 ErrInvalidToken
func (m *JWTManager) Parse(tokenStr string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return map[string]interface{}(claims), nil
}
