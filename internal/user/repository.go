package user

import "gorm.io/gorm"

type Repository interface {
	FindByID(id string) (*User, error)
	FindByReferralCode(code string) (*User, error)
	ListReferredBy(userID string) ([]User, error)
	UpdateReferralCode(userID, code string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(id string) (*User, error) {
	var user User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByReferralCode(code string) (*User, error) {
	var user User
	if err := r.db.Where("referral_code = ?", code).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListReferredBy(userID string) ([]User, error) {
	var users []User
	err := r.db.Where("referred_by_user_id = ?", userID).
		Order("created_at desc").
		Find(&users).Error
	return users, err
}

func (r *repository) UpdateReferralCode(userID, code string) error {
	return r.db.Model(&User{}).Where("id = ?", userID).Update("referral_code", code).Error
}
