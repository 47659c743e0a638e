package utils

import (
	"fmt"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

// LoginUser 当前登录坐席
type LoginUser struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"name"`
}

// ClaimsToUser 从JWT负载中提取坐席信息
func ClaimsToUser(claims map[string]interface{}) (*LoginUser, error) {
	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("无效的用户ID")
	}

	role, ok := claims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("无效的用户角色")
	}

	username, ok := claims["username"].(string)
	if !ok {
		// 检查是否有 "name" 字段作为备选
		if name, ok := claims["name"].(string); ok {
			username = name
		} else {
			return nil, fmt.Errorf("无效的用户名")
		}
	}

	return &LoginUser{ID: id, Role: role, Username: username}, nil
}

// GetUser 获取当前坐席信息
func GetUser(c *gin.Context) (*LoginUser, error) {
	currentUser, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("GetUser 未授权访问")
	}

	switch v := currentUser.(type) {
	case *LoginUser:
		return v, nil
	case jwt.MapClaims:
		return ClaimsToUser(v)
	case map[string]interface{}:
		return ClaimsToUser(v)
	default:
		return nil, fmt.Errorf("无法解析用户信息: %T", currentUser)
	}
}
