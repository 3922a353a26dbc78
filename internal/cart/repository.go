package cart

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	ListItems(userID string) ([]CartItem, error)
	Upsert(item *CartItem) error
	Clear(userID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListItems(userID string) ([]CartItem, error) {
	var items []CartItem
	err := r.db.Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&items).Error
	return items, err
}

func (r *repository) Upsert(item *CartItem) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"product_name", "image_url", "unit_price", "unit_discount", "quantity", "updated_at",
		}),
	}).Create(item).Error
}

func (r *repository) Clear(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&CartItem{}).Error
}
