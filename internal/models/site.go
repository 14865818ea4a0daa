package models

import "time"

// SiteGroup - Ortak malzeme mahsuplaşması yapan şantiye grubu
type SiteGroup struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Sites []Site `gorm:"foreignKey:GroupID"`
}

type Site struct {
	ID        uint   `gorm:"primaryKey"`
	GroupID   *uint  `gorm:"index"` // bir şantiye aynı anda en fazla bir grupta olabilir
	Group     *SiteGroup
	Name      string `gorm:"size:100;not null;unique"`
	Location  string `gorm:"size:255"`
	Phone     string `gorm:"size:50"` // Opsiyonel telefon
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
