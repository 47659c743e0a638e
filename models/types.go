package models

// UserRole 坐席角色枚举
type UserRole string

const (
	UserRoleSUPER_ADMIN   UserRole = "SUPER_ADMIN"   // 超级管理员
	UserRoleSALES_MANAGER UserRole = "SALES_MANAGER" // 销售主管
	UserRoleCALLER        UserRole = "CALLER"        // 外呼坐席
)

// IsValidUserRole 验证角色是否有效
func IsValidUserRole(role string) bool {
	switch UserRole(role) {
	case UserRoleSUPER_ADMIN, UserRoleSALES_MANAGER, UserRoleCALLER:
		return true
	}
	return false
}
