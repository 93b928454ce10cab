// Package testutil 测试用的内存数据库和基础数据
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB 每个测试独立的内存 sqlite，单连接保证事务内外看到同一个库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("file:learnhub_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := database.InitDB(&config.DatabaseConfig{Driver: "sqlite", DBName: name, LogLevel: "silent"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

const Category = "go-basics"

// Fixture 一门已发布的免费课程：4 个已发布课时（第 1 课为预览）和 1 个未发布课时
type Fixture struct {
	DB          *gorm.DB
	Admin       model.User
	Instructor  model.User
	Other       model.User // 不拥有课程的讲师
	Student     model.User
	Student2    model.User
	Course      model.Course
	Lessons     []model.Lesson
	Unpublished model.Lesson
}

func createUser(t *testing.T, db *gorm.DB, name string, role model.UserRole) model.User {
	u := model.User{Name: name, Email: name + "@example.com", Password: "x", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func Seed(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	f := &Fixture{DB: db}
	f.Admin = createUser(t, db, "admin", model.Admin)
	f.Instructor = createUser(t, db, "teacher", model.Instructor)
	f.Other = createUser(t, db, "other", model.Instructor)
	f.Student = createUser(t, db, "alice", model.Student)
	f.Student2 = createUser(t, db, "bob", model.Student)

	f.Course = model.Course{
		InstructorID: f.Instructor.ID,
		Title:        "Go 入门",
		Category:     Category,
		IsPublished:  true,
		IsFree:       true,
	}
	require.NoError(t, db.Create(&f.Course).Error)

	for i := 1; i <= 4; i++ {
		l := model.Lesson{
			CourseID:    f.Course.ID,
			Title:       fmt.Sprintf("第 %d 课", i),
			LessonOrder: i,
			IsPreview:   i == 1,
			IsPublished: true,
			Attachments: datatypes.NewJSONSlice([]model.Attachment{
				{Filename: fmt.Sprintf("notes-%d.pdf", i), OriginalName: fmt.Sprintf("讲义 %d.pdf", i), Size: 1000},
			}),
		}
		require.NoError(t, db.Create(&l).Error)
		f.Lessons = append(f.Lessons, l)
	}

	f.Unpublished = model.Lesson{CourseID: f.Course.ID, Title: "草稿", LessonOrder: 5, IsPublished: false}
	require.NoError(t, db.Create(&f.Unpublished).Error)
	return f
}

// Enroll 直接写入选课记录
func Enroll(t *testing.T, db *gorm.DB, studentID, courseID uint) model.Enrollment {
	t.Helper()
	e := model.Enrollment{StudentID: studentID, CourseID: courseID, PaymentStatus: model.PaymentFree}
	require.NoError(t, db.Create(&e).Error)
	return e
}

// Course 额外创建一门课程
func Course(t *testing.T, db *gorm.DB, instructorID uint, published, free bool, price float64) model.Course {
	t.Helper()
	c := model.Course{InstructorID: instructorID, Title: "课程", Category: "misc", IsPublished: published, IsFree: free, Price: price}
	require.NoError(t, db.Create(&c).Error)
	return c
}
