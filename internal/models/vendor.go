package models

import "time"

// Vendor - Malzeme tedarikçisi
type Vendor struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Phone     string `gorm:"size:50"`
	Address   string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Prices []VendorMaterialPrice `gorm:"foreignKey:VendorID;constraint:OnDelete:CASCADE"`
}

// VendorMaterialPrice - Tedarikçinin malzeme bazlı birim fiyatı
type VendorMaterialPrice struct {
	ID         uint `gorm:"primaryKey"`
	VendorID   uint `gorm:"index;not null"`
	Vendor     Vendor
	MaterialID uint `gorm:"index;not null"`
	Material   Material
	UnitPrice  float64   `gorm:"not null"`       // KDV dahil birim fiyat
	ValidFrom  time.Time `gorm:"index;not null"` // fiyatın geçerlilik başlangıcı
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
