package groupstock

import (
	"path/filepath"
	"testing"
	"time"

	"santiye-backend/internal/database"
	"santiye-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// Grup + iki şantiye + çimento malzemesi kur
func seedGroup(t *testing.T, db *gorm.DB) (group models.SiteGroup, siteA, siteB models.Site, cement models.Material) {
	t.Helper()

	group = models.SiteGroup{Name: "Marmara Grubu"}
	require.NoError(t, db.Create(&group).Error)

	siteA = models.Site{Name: "Kadıköy Şantiyesi", GroupID: &group.ID}
	require.NoError(t, db.Create(&siteA).Error)

	siteB = models.Site{Name: "Pendik Şantiyesi", GroupID: &group.ID}
	require.NoError(t, db.Create(&siteB).Error)

	cement = models.Material{Name: "Çimento", Unit: "torba"}
	require.NoError(t, db.Create(&cement).Error)

	return group, siteA, siteB, cement
}

func testDate() time.Time {
	return time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC)
}

func TestCreateBatch(t *testing.T) {
	db := newTestDB(t)
	group, siteA, _, cement := seedGroup(t, db)
	svc := NewService(db)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Note:         "aralık alımı",
		RecordedBy:   "Ahmet",
		Items: []BatchItemInput{
			{MaterialID: cement.ID, Quantity: 1000, UnitCost: 10},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, batch.Code, "PRT-")
	assert.Equal(t, models.BatchStatusRecorded, batch.Status)
	assert.InDelta(t, 10000, batch.TotalAmount, 0.001)
	require.Len(t, batch.Items, 1)
	assert.InDelta(t, 1000, batch.Items[0].RemainingQty, 0.001)

	// Her kalem için bir purchase defter satırı
	var txCount int64
	require.NoError(t, db.Model(&models.GroupStockTransaction{}).
		Where("batch_id = ? AND type = ?", batch.ID, models.StockTxPurchase).
		Count(&txCount).Error)
	assert.Equal(t, int64(1), txCount)
}

func TestCreateBatch_GrupDisiSantiyeReddedilir(t *testing.T) {
	db := newTestDB(t)
	group, _, _, cement := seedGroup(t, db)
	svc := NewService(db)

	outsider := models.Site{Name: "Bağımsız Şantiye"}
	require.NoError(t, db.Create(&outsider).Error)

	_, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: outsider.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 10, UnitCost: 5}},
	})
	assert.ErrorIs(t, err, ErrSiteNotInGroup)
}

func TestRecordUsage(t *testing.T) {
	db := newTestDB(t)
	group, siteA, siteB, cement := seedGroup(t, db)
	svc := NewService(db)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 1000, UnitCost: 10}},
	})
	require.NoError(t, err)

	allocB, err := svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: cement.ID,
		Quantity:   300,
		Date:       testDate(),
		RecordedBy: "Mehmet",
	})
	require.NoError(t, err)

	assert.InDelta(t, 3000, allocB.Amount, 0.001)
	assert.False(t, allocB.IsPayer)
	assert.Nil(t, allocB.SettlementID)

	// Kalan miktar düştü, durum partial_used oldu
	var item models.GroupStockBatchItem
	require.NoError(t, db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 700, item.RemainingQty, 0.001)

	var fresh models.GroupStockBatch
	require.NoError(t, db.First(&fresh, batch.ID).Error)
	assert.Equal(t, models.BatchStatusPartialUsed, fresh.Status)

	// Ödeyenin kendi kullanımı is_payer işaretlenir
	allocA, err := svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteA.ID,
		MaterialID: cement.ID,
		Quantity:   100,
		Date:       testDate(),
	})
	require.NoError(t, err)
	assert.True(t, allocA.IsPayer)
}

func TestRecordUsage_KalanMiktarAsilamaz(t *testing.T) {
	db := newTestDB(t)
	group, siteA, siteB, cement := seedGroup(t, db)
	svc := NewService(db)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 100, UnitCost: 10}},
	})
	require.NoError(t, err)

	_, err = svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: cement.ID,
		Quantity:   150,
		Date:       testDate(),
	})
	assert.ErrorIs(t, err, ErrQuantityExceedsRemaining)

	// Başarısız kullanım kalan miktara dokunmaz
	var item models.GroupStockBatchItem
	require.NoError(t, db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 100, item.RemainingQty, 0.001)
}

func TestRecordUsage_PartideOlmayanMalzemeReddedilir(t *testing.T) {
	db := newTestDB(t)
	group, siteA, siteB, cement := seedGroup(t, db)
	svc := NewService(db)

	brick := models.Material{Name: "Tuğla", Unit: "adet"}
	require.NoError(t, db.Create(&brick).Error)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 100, UnitCost: 10}},
	})
	require.NoError(t, err)

	_, err = svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: brick.ID,
		Quantity:   10,
		Date:       testDate(),
	})
	assert.ErrorIs(t, err, ErrMaterialNotInBatch)
}

func TestCloseBatch_KalanMiktarOdeyeneYazilir(t *testing.T) {
	db := newTestDB(t)
	group, siteA, siteB, cement := seedGroup(t, db)
	svc := NewService(db)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 1000, UnitCost: 10}},
	})
	require.NoError(t, err)

	_, err = svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: cement.ID,
		Quantity:   300,
		Date:       testDate(),
	})
	require.NoError(t, err)

	closed, err := svc.CloseBatch(batch.ID, "Ahmet")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, closed.Status)

	// Dokunulmamış 700 torba ödeyenin tüketimi olarak zorla tahsis edildi
	var payerAllocs []models.BatchUsageAllocation
	require.NoError(t, db.Where("batch_id = ? AND site_id = ? AND is_payer = ?",
		batch.ID, siteA.ID, true).Find(&payerAllocs).Error)
	require.Len(t, payerAllocs, 1)
	assert.InDelta(t, 700, payerAllocs[0].QuantityUsed, 0.001)
	assert.InDelta(t, 7000, payerAllocs[0].Amount, 0.001)

	var item models.GroupStockBatchItem
	require.NoError(t, db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 0, item.RemainingQty, 0.001)

	// Kapatılan partiye kullanım girilemez
	_, err = svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: cement.ID,
		Quantity:   1,
		Date:       testDate(),
	})
	assert.ErrorIs(t, err, ErrBatchCompleted)
}

func TestDeletePurchase_TumKayitlarBirlikteGider(t *testing.T) {
	db := newTestDB(t)
	group, siteA, siteB, cement := seedGroup(t, db)
	svc := NewService(db)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 1000, UnitCost: 10}},
	})
	require.NoError(t, err)

	_, err = svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: cement.ID,
		Quantity:   300,
		Date:       testDate(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePurchase(batch.ID, "Ahmet"))

	var batchCount, itemCount, txCount, allocCount int64
	require.NoError(t, db.Model(&models.GroupStockBatch{}).Where("id = ?", batch.ID).Count(&batchCount).Error)
	require.NoError(t, db.Model(&models.GroupStockBatchItem{}).Where("batch_id = ?", batch.ID).Count(&itemCount).Error)
	require.NoError(t, db.Unscoped().Model(&models.GroupStockTransaction{}).Where("batch_id = ?", batch.ID).Count(&txCount).Error)
	require.NoError(t, db.Model(&models.BatchUsageAllocation{}).Where("batch_id = ?", batch.ID).Count(&allocCount).Error)

	assert.Zero(t, batchCount)
	assert.Zero(t, itemCount)
	assert.Zero(t, txCount)
	assert.Zero(t, allocCount)
}

func TestDeletePurchase_CanliMahsubaBagliTahsisVarsaReddedilir(t *testing.T) {
	db := newTestDB(t)
	group, siteA, siteB, cement := seedGroup(t, db)
	svc := NewService(db)

	batch, err := svc.CreateBatch(CreateBatchInput{
		GroupID:      group.ID,
		PayingSiteID: siteA.ID,
		Date:         testDate(),
		Items:        []BatchItemInput{{MaterialID: cement.ID, Quantity: 1000, UnitCost: 10}},
	})
	require.NoError(t, err)

	alloc, err := svc.RecordUsage(RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     siteB.ID,
		MaterialID: cement.ID,
		Quantity:   300,
		Date:       testDate(),
	})
	require.NoError(t, err)

	// Tahsisi canlı bir mahsuba bağla
	stl := models.InterSiteSettlement{
		Code:        "MHS-TEST0001",
		GroupID:     group.ID,
		FromSiteID:  siteA.ID,
		ToSiteID:    siteB.ID,
		TotalAmount: alloc.Amount,
		Week:        50,
		Year:        2025,
		Status:      models.SettlementStatusPending,
	}
	require.NoError(t, db.Create(&stl).Error)
	require.NoError(t, db.Model(&models.BatchUsageAllocation{}).
		Where("id = ?", alloc.ID).
		Update("settlement_id", stl.ID).Error)

	err = svc.DeletePurchase(batch.ID, "Ahmet")
	assert.ErrorIs(t, err, ErrAllocationClaimed)

	// Parti yerinde duruyor
	var count int64
	require.NoError(t, db.Model(&models.GroupStockBatch{}).Where("id = ?", batch.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
