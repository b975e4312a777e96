package models

import (
	"time"
)

type Customer struct {
	CustomerId     string    `gorm:"size:64;index;not null" json:"customer_id" validate:"required"`
	Name           string    `gorm:"size:255" json:"name"`
	Email          string    `gorm:"size:255" json:"email"`
	Country        string    `gorm:"size:100;index" json:"country"`
	Age            int       `json:"age"`
	SignupDate     time.Time `json:"signup_date"`
	MarketingOptIn bool      `gorm:"not null;default:false" json:"marketing_opt_in"`
}

func (Customer) TableName() string {
	return "customers"
}
