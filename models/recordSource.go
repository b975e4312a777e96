package models

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormSource reads the raw tables through gorm (MySQL in production).
type GormSource struct {
	DB *gorm.DB
}

func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{DB: db}
}

func (s *GormSource) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("gorm source: no database")
	}
	db := s.DB.WithContext(ctx)
	var snapshot Snapshot

	if err := db.Order("order_id").Find(&snapshot.Orders).Error; err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	if err := db.Order("order_id").Order("product_id").Find(&snapshot.OrderItems).Error; err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	if err := db.Order("product_id").Find(&snapshot.Products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if err := db.Order("customer_id").Find(&snapshot.Customers).Error; err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	return &snapshot, nil
}
