package models

import "time"

type EquipmentStatus string

const (
	EquipmentStatusActive      EquipmentStatus = "active"      // sahada
	EquipmentStatusMaintenance EquipmentStatus = "maintenance" // bakımda
	EquipmentStatusRetired     EquipmentStatus = "retired"     // hurdaya ayrıldı
)

// Equipment - Şirket ekipmanı (vinç, jeneratör, vibratör vs.)
type Equipment struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"size:40;uniqueIndex;not null"` // demirbaş kodu
	Name      string `gorm:"size:100;not null"`
	Status    EquipmentStatus `gorm:"size:20;not null;default:active"`
	SiteID    *uint  `gorm:"index"` // şu an hangi şantiyede (null = depoda)
	Site      *Site
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EquipmentAssignment - Ekipmanın şantiye geçmişi
type EquipmentAssignment struct {
	ID          uint `gorm:"primaryKey"`
	EquipmentID uint `gorm:"index;not null"`
	Equipment   Equipment
	SiteID      uint `gorm:"index;not null"`
	Site        Site
	AssignedAt  time.Time `gorm:"index;not null"`
	ReleasedAt  *time.Time
	Note        string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
