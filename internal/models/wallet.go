package models

import "time"

type WalletEntryType string

const (
	WalletEntryCredit WalletEntryType = "credit" // avans/para yükleme
	WalletEntryDebit  WalletEntryType = "debit"  // harcama
)

// WalletEntry - Mühendis kasası hareketi. Bakiye ayrı bir kolonda tutulmaz,
// her zaman hareketlerin toplamından hesaplanır.
type WalletEntry struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index;not null"` // kasanın sahibi mühendis
	User        User
	SiteID      *uint `gorm:"index"` // harcamanın yapıldığı şantiye (opsiyonel)
	Type        WalletEntryType `gorm:"size:10;not null"`
	Amount      float64         `gorm:"not null"`
	Date        time.Time       `gorm:"index;not null"`
	Description string          `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
