package notification

import "gorm.io/gorm"

type Repository interface {
	Create(n *UserNotification) error
	ListForUser(userID string, limit, offset int) ([]UserNotification, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(n *UserNotification) error {
	return r.db.Create(n).Error
}

func (r *repository) ListForUser(userID string, limit, offset int) ([]UserNotification, error) {
	var notifications []UserNotification
	err := r.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	return notifications, err
}
