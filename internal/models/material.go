package models

import "time"

// Material - Malzeme kataloğu (çimento, tuğla, demir vs.)
type Material struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Unit      string `gorm:"size:20;not null"` // adet, kg, m3, torba...
	Category  string `gorm:"size:50"`          // Opsiyonel kategori (kaba inşaat, elektrik vs.)
	CreatedAt time.Time
	UpdatedAt time.Time
}
