package service

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
)

// Actor 请求级别的调用者身份，由认证中间件解析后显式传入各业务方法
type Actor struct {
	UserID uint
	Role   model.UserRole
}

func ActorFromClaims(claims *util.Claims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

func (a Actor) Authenticated() bool {
	return a.UserID != 0 && a.Role.Valid()
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.Admin
}

func (a Actor) IsStudent() bool {
	return a.Role == model.Student
}

// Owns 讲师是否为课程所有者
func (a Actor) Owns(course *model.Course) bool {
	return a.Role == model.Instructor && course != nil && course.InstructorID == a.UserID
}

// CanManage 课程所有者或管理员
func (a Actor) CanManage(course *model.Course) bool {
	return a.IsAdmin() || a.Owns(course)
}
