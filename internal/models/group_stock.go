package models

import (
	"time"

	"gorm.io/gorm"
)

type BatchStatus string

const (
	BatchStatusRecorded    BatchStatus = "recorded"     // alım kaydedildi, henüz kullanım yok
	BatchStatusPartialUsed BatchStatus = "partial_used" // kısmen kullanıldı
	BatchStatusCompleted   BatchStatus = "completed"    // kapatıldı, kalan miktar ödeyen şantiyeye yazıldı
)

// GroupStockBatch - Grup adına tek bir şantiyenin ödediği toplu malzeme alımı (parti).
// Kalan miktar kullanım kaydedildikçe azalır; "completed" durumuna yalnızca
// partiyi kapatan idari işlemle geçilir.
type GroupStockBatch struct {
	ID           uint   `gorm:"primaryKey"`
	Code         string `gorm:"size:40;uniqueIndex;not null"` // parti referans kodu (PRT-XXXXXXXX)
	GroupID      uint   `gorm:"index;not null"`
	Group        SiteGroup
	PayingSiteID uint `gorm:"index;not null"` // parayı ödeyen şantiye
	PayingSite   Site `gorm:"foreignKey:PayingSiteID"`
	TotalAmount  float64     `gorm:"not null"` // ödenen toplam tutar
	Status       BatchStatus `gorm:"size:20;not null;index;default:recorded"`
	Date         time.Time   `gorm:"index;not null"` // teslim tarihi
	Note         string      `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items []GroupStockBatchItem `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

// GroupStockBatchItem - Partideki her malzeme kalemi
type GroupStockBatchItem struct {
	ID           uint `gorm:"primaryKey"`
	BatchID      uint `gorm:"index;not null"`
	MaterialID   uint `gorm:"index;not null"`
	Material     Material
	Quantity     float64 `gorm:"not null"` // alınan miktar
	RemainingQty float64 `gorm:"not null"` // henüz kullanılmamış miktar
	Unit         string  `gorm:"size:20;not null"`
	UnitCost     float64 `gorm:"not null"`
	TotalCost    float64 `gorm:"not null"` // Quantity * UnitCost
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type StockTransactionType string

const (
	StockTxPurchase StockTransactionType = "purchase" // alım satırı
	StockTxUsage    StockTransactionType = "usage"    // kullanım satırı
)

// GroupStockTransaction - Değişmez defter satırı. Oluşturulduktan sonra
// güncellenmez; yetkili silme soft delete ile yapılır.
type GroupStockTransaction struct {
	ID         uint `gorm:"primaryKey"`
	BatchID    uint `gorm:"index;not null"`
	Batch      GroupStockBatch
	Type       StockTransactionType `gorm:"size:20;not null;index"`
	SiteID     uint                 `gorm:"index;not null"` // purchase: ödeyen, usage: kullanan şantiye
	Site       Site
	MaterialID uint `gorm:"index;not null"`
	Material   Material
	Quantity   float64   `gorm:"not null"`
	UnitCost   float64   `gorm:"not null"`
	TotalCost  float64   `gorm:"not null"`
	Date       time.Time `gorm:"index;not null"`
	RecordedBy string    `gorm:"size:100"` // kaydı giren kullanıcı (sadece izleme amaçlı)
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// BatchUsageAllocation - Parti başına, şantiye başına tüketim kaydı.
// SettlementID dolu ise kayıt canlı bir mahsuba bağlanmıştır ve bakiye
// hesabına girmez; mahsup iptal edilince tekrar NULL olur.
// Değişmez: is_payer=false kayıtların tutar toplamı parti tutarını aşamaz.
type BatchUsageAllocation struct {
	ID            uint `gorm:"primaryKey"`
	BatchID       uint `gorm:"index;not null"`
	Batch         GroupStockBatch
	SiteID        uint `gorm:"index;not null"` // tüketen şantiye
	Site          Site
	MaterialID    uint `gorm:"index;not null"`
	TransactionID uint `gorm:"index;not null"` // kaynağı olan usage satırı
	Amount        float64 `gorm:"not null"`
	QuantityUsed  float64 `gorm:"not null"`
	IsPayer       bool    `gorm:"not null;default:false;index"` // ödeyen şantiyenin kendi tüketimi mi
	SettlementID  *uint   `gorm:"index"`                        // NULL = mahsuplaşmamış
	Date          time.Time `gorm:"index;not null"` // kaynak işlemin tarihi (hafta hesabı için)
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
