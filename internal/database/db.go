package database

import (
	"log"

	"santiye-backend/internal/config"
	"santiye-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Veritabanına bağlanılamadı: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate hatası: %v", err)
	}

	// Tahsis claim/release sorguları (batch_id, site_id, settlement_id)
	// üçlüsüyle çalışıyor; AutoMigrate tekil index'leri açıyor ama bileşik
	// index'i açmıyor
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_batch_usage_allocations_claim ON batch_usage_allocations(batch_id, site_id, settlement_id)")

	log.Println("Veritabanı bağlantısı başarılı. Migration tamamlandı.")
}

// Migrate tüm tabloları oluşturur/günceller. Engine testleri aynı şemayı
// sqlite üzerinde kurmak için de bu fonksiyonu kullanır.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SiteGroup{},
		&models.Site{},
		&models.User{},
		&models.Material{},
		&models.Vendor{},
		&models.VendorMaterialPrice{},
		&models.Equipment{},
		&models.EquipmentAssignment{},
		&models.WalletEntry{},
		&models.AuditLog{},
		// Ortak malzeme / mahsuplaşma modelleri
		&models.GroupStockBatch{},
		&models.GroupStockBatchItem{},
		&models.GroupStockTransaction{},
		&models.BatchUsageAllocation{},
		&models.InterSiteSettlement{},
		&models.SettlementPayment{},
	)
}
