package models

import "time"

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"   // oluşturuldu, onay bekliyor
	SettlementStatusApproved  SettlementStatus = "approved"  // idari onay verildi
	SettlementStatusSettled   SettlementStatus = "settled"   // ödeme kaydedildi
	SettlementStatusCancelled SettlementStatus = "cancelled" // iptal edildi (silinebilir)
)

// InterSiteSettlement - Şantiyeler arası mahsup kaydı.
// FromSite alacaklı (partiyi ödeyen), ToSite borçlu (malzemeyi kullanan).
// Kayıt, kendisini oluşturan kullanım tahsislerinin sahibidir; iptal
// edilmediği sürece o tahsisler bakiye hesabına girmez.
type InterSiteSettlement struct {
	ID           uint   `gorm:"primaryKey"`
	Code         string `gorm:"size:40;uniqueIndex;not null"` // mahsup kodu (MHS-XXXXXXXX)
	GroupID      uint   `gorm:"index;not null"`
	FromSiteID   uint   `gorm:"index;not null"` // alacaklı şantiye
	FromSite     Site   `gorm:"foreignKey:FromSiteID"`
	ToSiteID     uint   `gorm:"index;not null"` // borçlu şantiye
	ToSite       Site   `gorm:"foreignKey:ToSiteID"`
	TotalAmount  float64 `gorm:"not null"`
	PaidAmount   float64 `gorm:"not null;default:0"`
	Week         int     `gorm:"not null"` // ISO hafta numarası
	Year         int     `gorm:"not null"` // ISO yılı
	BatchID      *uint   `gorm:"index"`    // tek partiden geliyorsa referans
	Status       SettlementStatus `gorm:"size:20;not null;index;default:pending"`
	SettledAt    *time.Time
	CancelledAt  *time.Time
	CancelReason string `gorm:"size:255"`
	CreatedBy    string `gorm:"size:100"`
	CancelledBy  string `gorm:"size:100"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Payments []SettlementPayment `gorm:"foreignKey:SettlementID;constraint:OnDelete:CASCADE"`
}

// SettlementPayment - Mahsuba yapılan ödeme. Oluşturulduktan sonra
// değişmez; mahsup "settled" durumundan geri alınırsa silinir.
type SettlementPayment struct {
	ID           uint `gorm:"primaryKey"`
	SettlementID uint `gorm:"index;not null"`
	Amount       float64 `gorm:"not null"`
	PayerSource  string  `gorm:"size:50"` // şantiye kasası, merkez, banka...
	PaymentMode  string  `gorm:"size:50"` // nakit, havale, çek...
	Date         time.Time `gorm:"index;not null"`
	RecordedBy   string    `gorm:"size:100"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
