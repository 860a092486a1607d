// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"strings"

	"smartdoc-go/internal/model"

	"gorm.io/gorm"
)

// ErrUsernameTaken 表示 users.username 唯一索引冲突。
var ErrUsernameTaken = errors.New("username already taken")

// UserRepository 管理文档所有者账号。
type UserRepository interface {
	Create(user *model.User) error
	FindByUsername(username string) (*model.User, error)
	FindByID(userID uint) (*model.User, error)
	UsernameTaken(username string) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 写入新账号。并发注册同名用户时，唯一索引冲突统一映射为 ErrUsernameTaken。
func (r *userRepository) Create(user *model.User) error {
	user.Username = strings.TrimSpace(user.Username)
	err := r.db.Create(user).Error
	if isDuplicateKey(err) {
		return ErrUsernameTaken
	}
	return err
}

func (r *userRepository) FindByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	if err := r.db.Take(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UsernameTaken 只做计数，不加载密码哈希。
func (r *userRepository) UsernameTaken(username string) (bool, error) {
	var n int64
	err := r.db.Model(&model.User{}).Where("username = ?", strings.TrimSpace(username)).Count(&n).Error
	return n > 0, err
}

// isDuplicateKey 兼容开启与未开启 TranslateError 的方言。
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
