package utils

import (
	"fmt"
	"time"

	"github.com/BerniceZTT/dialer_end/config"
	"github.com/BerniceZTT/dialer_end/models"

	"github.com/dgrijalva/jwt-go"
)

var jwtSecret = []byte(config.LoadConfig().JWTKey)

// SetJWTSecret 替换签名密钥
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// GenerateToken 为坐席生成JWT令牌
func GenerateToken(user LoginUser, ttl time.Duration) (string, error) {
	if !models.IsValidUserRole(user.Role) {
		return "", fmt.Errorf("不支持的角色: %s", user.Role)
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	claims := jwt.MapClaims{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		Logger.Error().Err(err).Msg("生成token失败")
		return "", err
	}

	Logger.Info().
		Str("id", user.ID).
		Str("role", user.Role).
		Msg("Token生成成功")

	return tokenString, nil
}

// ParseToken 解析和验证JWT令牌
func ParseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("无效的token")
}

// HasPermission 检查角色是否有权限
func HasPermission(role models.UserRole, resource string, action string) bool {
	// 超级管理员拥有所有权限
	if role == models.UserRoleSUPER_ADMIN {
		return true
	}

	permissions := map[models.UserRole]map[string][]string{
		models.UserRoleSALES_MANAGER: {
			"leads":  {"read", "create", "update", "delete"},
			"dialer": {"read", "work"},
			"claims": {"sweep"},
		},
		models.UserRoleCALLER: {
			"leads":  {"read", "create", "update"},
			"dialer": {"read", "work"},
		},
	}

	if resourceActions, exists := permissions[role]; exists {
		if actions, hasResource := resourceActions[resource]; hasResource {
			for _, a := range actions {
				if a == action {
					return true
				}
			}
		}
	}

	return false
}
