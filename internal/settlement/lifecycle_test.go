package settlement

import (
	"path/filepath"
	"testing"
	"time"

	"santiye-backend/internal/database"
	"santiye-backend/internal/groupstock"
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

type fixture struct {
	db     *gorm.DB
	stocks *groupstock.Service
	svc    *Service
	group  models.SiteGroup
	siteA  models.Site // ödeyen / alacaklı
	siteB  models.Site // kullanan / borçlu
	brick  models.Material
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{
		db:     db,
		stocks: groupstock.NewService(db),
		svc:    NewService(db),
	}

	f.group = models.SiteGroup{Name: "Ege Grubu"}
	require.NoError(t, db.Create(&f.group).Error)

	f.siteA = models.Site{Name: "Bornova Şantiyesi", GroupID: &f.group.ID}
	require.NoError(t, db.Create(&f.siteA).Error)

	f.siteB = models.Site{Name: "Urla Şantiyesi", GroupID: &f.group.ID}
	require.NoError(t, db.Create(&f.siteB).Error)

	f.brick = models.Material{Name: "Tuğla", Unit: "adet"}
	require.NoError(t, db.Create(&f.brick).Error)

	return f
}

// 9 Aralık 2025, ISO 2025/50
func week50() time.Time {
	return time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC)
}

// Parti: A 1000 tuğlayı 10 TL'den öder, B 300 tanesini kullanır.
func (f *fixture) seedBrickBatch(t *testing.T) *models.GroupStockBatch {
	t.Helper()

	batch, err := f.stocks.CreateBatch(groupstock.CreateBatchInput{
		GroupID:      f.group.ID,
		PayingSiteID: f.siteA.ID,
		Date:         week50(),
		RecordedBy:   "Ahmet",
		Items: []groupstock.BatchItemInput{
			{MaterialID: f.brick.ID, Quantity: 1000, UnitCost: 10},
		},
	})
	require.NoError(t, err)

	_, err = f.stocks.RecordUsage(groupstock.RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     f.siteB.ID,
		MaterialID: f.brick.ID,
		Quantity:   300,
		Date:       week50(),
		RecordedBy: "Mehmet",
	})
	require.NoError(t, err)

	return batch
}

func (f *fixture) generate(t *testing.T) *models.InterSiteSettlement {
	t.Helper()
	stl, err := f.svc.Generate(GenerateInput{
		GroupID:        f.group.ID,
		CreditorSiteID: f.siteA.ID,
		DebtorSiteID:   f.siteB.ID,
		Week:           50,
		Year:           2025,
		CreatedBy:      "Ahmet",
	})
	require.NoError(t, err)
	return stl
}

func payment(amount float64) PaymentInput {
	return PaymentInput{
		Amount:      amount,
		PayerSource: "şantiye kasası",
		PaymentMode: "havale",
		Date:        week50(),
		RecordedBy:  "Mehmet",
	}
}

// ----------------------------------------
// Bakiye + üretim
// ----------------------------------------

func TestListBalances_TuglaSenaryosu(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)

	balances, err := f.svc.ListBalances(f.group.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)

	b := balances[0]
	assert.Equal(t, f.siteA.ID, b.CreditorSiteID)
	assert.Equal(t, f.siteB.ID, b.DebtorSiteID)
	assert.Equal(t, 50, b.Week)
	assert.Equal(t, 2025, b.Year)
	assert.InDelta(t, 3000, b.TotalAmountOwed, 0.001)
	assert.Equal(t, 1, b.TransactionCount)
}

func TestGenerate_TahsisleriKilitler(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBrickBatch(t)

	stl := f.generate(t)

	assert.Contains(t, stl.Code, "MHS-")
	assert.Equal(t, models.SettlementStatusPending, stl.Status)
	assert.InDelta(t, 3000, stl.TotalAmount, 0.001)
	require.NotNil(t, stl.BatchID)
	assert.Equal(t, batch.ID, *stl.BatchID)

	// Tahsis kilitlendi
	var alloc models.BatchUsageAllocation
	require.NoError(t, f.db.Where("batch_id = ? AND site_id = ?", batch.ID, f.siteB.ID).First(&alloc).Error)
	require.NotNil(t, alloc.SettlementID)
	assert.Equal(t, stl.ID, *alloc.SettlementID)

	// Bakiye artık görünmüyor
	balances, err := f.svc.ListBalances(f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestGenerate_AyniBakiyeIkinciKezUretilemez(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	f.generate(t)

	_, err := f.svc.Generate(GenerateInput{
		GroupID:        f.group.ID,
		CreditorSiteID: f.siteA.ID,
		DebtorSiteID:   f.siteB.ID,
		Week:           50,
		Year:           2025,
	})
	assert.ErrorIs(t, err, ErrNoBalanceFound)
}

func TestGenerate_BosHaftaIcinUretilemez(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)

	_, err := f.svc.Generate(GenerateInput{
		GroupID:        f.group.ID,
		CreditorSiteID: f.siteA.ID,
		DebtorSiteID:   f.siteB.ID,
		Week:           10, // bu haftada kullanım yok
		Year:           2025,
	})
	assert.ErrorIs(t, err, ErrNoBalanceFound)
}

// ----------------------------------------
// Durum makinesi
// ----------------------------------------

func TestApprove(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	approved, err := f.svc.Approve(stl.ID, "Ayşe")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusApproved, approved.Status)

	// İkinci onay geçersiz
	_, err = f.svc.Approve(stl.ID, "Ayşe")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordPayment_OnaysizDaOdenir(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	// pending'den doğrudan settled'a geçilebilir
	settled, err := f.svc.RecordPayment(stl.ID, payment(3000))
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusSettled, settled.Status)
	assert.InDelta(t, 3000, settled.PaidAmount, 0.001)
	assert.NotNil(t, settled.SettledAt)
	require.Len(t, settled.Payments, 1)

	// settled üstüne ikinci ödeme geçersiz
	_, err = f.svc.RecordPayment(stl.ID, payment(1))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordPayment_GecersizTutarReddedilir(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	_, err := f.svc.RecordPayment(stl.ID, payment(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.RecordPayment(stl.ID, payment(-50))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCancel_PendingTahsisleriSerbestBirakir(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBrickBatch(t)
	stl := f.generate(t)

	cancelled, err := f.svc.Cancel(stl.ID, "yanlış hafta seçildi", "Ahmet")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusCancelled, cancelled.Status)
	assert.Equal(t, "yanlış hafta seçildi", cancelled.CancelReason)
	assert.NotNil(t, cancelled.CancelledAt)

	// Tahsis serbest kaldı, bakiye tekrar görünüyor
	var alloc models.BatchUsageAllocation
	require.NoError(t, f.db.Where("batch_id = ? AND site_id = ?", batch.ID, f.siteB.ID).First(&alloc).Error)
	assert.Nil(t, alloc.SettlementID)

	balances, err := f.svc.ListBalances(f.group.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.InDelta(t, 3000, balances[0].TotalAmountOwed, 0.001)

	// İptal sonrası yeniden üretim aynı tutarı vermeli
	regen := f.generate(t)
	assert.NotEqual(t, stl.ID, regen.ID)
	assert.InDelta(t, stl.TotalAmount, regen.TotalAmount, 0.001)
}

func TestCancel_SettledOdemeyiSiler(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	_, err := f.svc.RecordPayment(stl.ID, payment(3000))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(stl.ID, "ödeme hatalı girildi", "Ahmet")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusCancelled, cancelled.Status)
	assert.InDelta(t, 0, cancelled.PaidAmount, 0.001)
	assert.Nil(t, cancelled.SettledAt)

	// Ödeme satırları yok edildi
	var payCount int64
	require.NoError(t, f.db.Model(&models.SettlementPayment{}).
		Where("settlement_id = ?", stl.ID).Count(&payCount).Error)
	assert.Zero(t, payCount)

	// Bakiye aynı tutarla geri geldi
	balances, err := f.svc.ListBalances(f.group.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.InDelta(t, stl.TotalAmount, balances[0].TotalAmountOwed, 0.001)

	// Yeniden üretilen mahsup orijinal tutarı birebir taşır
	regen := f.generate(t)
	assert.InDelta(t, stl.TotalAmount, regen.TotalAmount, 0.001)
}

func TestCancel_SonrasiOdemeGirilemez(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	_, err := f.svc.Cancel(stl.ID, "vazgeçildi", "Ahmet")
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(stl.ID, payment(3000))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Başarısız ödeme denemesi satır bırakmaz
	var payCount int64
	require.NoError(t, f.db.Model(&models.SettlementPayment{}).
		Where("settlement_id = ?", stl.ID).Count(&payCount).Error)
	assert.Zero(t, payCount)
}

func TestCancel_IptalEdilmisIkinciKezIptalEdilemez(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	_, err := f.svc.Cancel(stl.ID, "test", "Ahmet")
	require.NoError(t, err)

	_, err = f.svc.Cancel(stl.ID, "tekrar", "Ahmet")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDelete_SadeceIptalEdilmisSilinir(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	// pending silinemez
	err := f.svc.Delete(stl.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Cancel(stl.ID, "test", "Ahmet")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(stl.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.InterSiteSettlement{}).
		Where("id = ?", stl.ID).Count(&count).Error)
	assert.Zero(t, count)
}

// ----------------------------------------
// Tek adım ödeme
// ----------------------------------------

func TestSettlePayment_BakiyedenTekAdimda(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)

	stl, err := f.svc.SettlePayment(SettlePaymentInput{
		GroupID:    f.group.ID,
		CreditorID: f.siteA.ID,
		DebtorID:   f.siteB.ID,
		Week:       50,
		Year:       2025,
		Payment:    payment(3000),
	})
	require.NoError(t, err)

	assert.Equal(t, models.SettlementStatusSettled, stl.Status)
	assert.InDelta(t, 3000, stl.TotalAmount, 0.001)
	assert.InDelta(t, 3000, stl.PaidAmount, 0.001)

	// Bakiye temizlendi
	balances, err := f.svc.ListBalances(f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestSettlePayment_MevcutMahsubaOdeme(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)

	paid, err := f.svc.SettlePayment(SettlePaymentInput{
		SettlementID: stl.ID,
		Payment:      payment(3000),
	})
	require.NoError(t, err)
	assert.Equal(t, stl.ID, paid.ID)
	assert.Equal(t, models.SettlementStatusSettled, paid.Status)
}

// ----------------------------------------
// Kullanım geri alma
// ----------------------------------------

func TestDeleteUnsettledUsage_MiktariGeriYazar(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBrickBatch(t)

	require.NoError(t, f.svc.DeleteUnsettledUsage(batch.ID, f.siteB.ID))

	// Kalan miktar 700'den 1000'e döndü
	var item models.GroupStockBatchItem
	require.NoError(t, f.db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 1000, item.RemainingQty, 0.001)

	// Tahsis ve defter satırı gitti
	var allocCount, txCount int64
	require.NoError(t, f.db.Model(&models.BatchUsageAllocation{}).
		Where("batch_id = ? AND site_id = ?", batch.ID, f.siteB.ID).Count(&allocCount).Error)
	require.NoError(t, f.db.Unscoped().Model(&models.GroupStockTransaction{}).
		Where("batch_id = ? AND site_id = ? AND type = ?", batch.ID, f.siteB.ID, models.StockTxUsage).
		Count(&txCount).Error)
	assert.Zero(t, allocCount)
	assert.Zero(t, txCount)

	// Hiç tahsis kalmadığı için parti "recorded"a döndü
	var fresh models.GroupStockBatch
	require.NoError(t, f.db.First(&fresh, batch.ID).Error)
	assert.Equal(t, models.BatchStatusRecorded, fresh.Status)
}

func TestDeleteUnsettledUsage_KilitliTahsisVarsaReddedilir(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBrickBatch(t)
	f.generate(t)

	err := f.svc.DeleteUnsettledUsage(batch.ID, f.siteB.ID)
	assert.ErrorIs(t, err, groupstock.ErrAllocationClaimed)

	// Hiçbir şey silinmedi
	var item models.GroupStockBatchItem
	require.NoError(t, f.db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 700, item.RemainingQty, 0.001)
}

func TestDeleteUnsettledUsage_KarisikTahsislerdeHicbiriSilinmez(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBrickBatch(t)

	// Aynı partiden bir hafta sonra ikinci kullanım (ISO 2025/51)
	_, err := f.stocks.RecordUsage(groupstock.RecordUsageInput{
		BatchID:    batch.ID,
		SiteID:     f.siteB.ID,
		MaterialID: f.brick.ID,
		Quantity:   200,
		Date:       week50().AddDate(0, 0, 7),
		RecordedBy: "Mehmet",
	})
	require.NoError(t, err)

	// 50. haftanın mahsubu ilk tahsisi kilitler, ikincisi boşta kalır
	f.generate(t)

	err = f.svc.DeleteUnsettledUsage(batch.ID, f.siteB.ID)
	assert.ErrorIs(t, err, groupstock.ErrAllocationClaimed)

	// Boştaki tahsis de dahil hiçbir şey silinmedi
	var allocCount int64
	require.NoError(t, f.db.Model(&models.BatchUsageAllocation{}).
		Where("batch_id = ? AND site_id = ?", batch.ID, f.siteB.ID).Count(&allocCount).Error)
	assert.EqualValues(t, 2, allocCount)

	var item models.GroupStockBatchItem
	require.NoError(t, f.db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 500, item.RemainingQty, 0.001)
}

func TestDeleteUnsettledUsageBetween_TumPartileriGeriAlir(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)

	// A'nın ikinci partisi, B yine kullanıyor
	cement := models.Material{Name: "Çimento", Unit: "torba"}
	require.NoError(t, f.db.Create(&cement).Error)

	batch2, err := f.stocks.CreateBatch(groupstock.CreateBatchInput{
		GroupID:      f.group.ID,
		PayingSiteID: f.siteA.ID,
		Date:         week50(),
		RecordedBy:   "Ahmet",
		Items: []groupstock.BatchItemInput{
			{MaterialID: cement.ID, Quantity: 400, UnitCost: 150},
		},
	})
	require.NoError(t, err)

	_, err = f.stocks.RecordUsage(groupstock.RecordUsageInput{
		BatchID:    batch2.ID,
		SiteID:     f.siteB.ID,
		MaterialID: cement.ID,
		Quantity:   100,
		Date:       week50(),
		RecordedBy: "Mehmet",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUnsettledUsageBetween(f.group.ID, f.siteA.ID, f.siteB.ID))

	// Her iki partinin kalemleri de eski miktarına döndü
	var items []models.GroupStockBatchItem
	require.NoError(t, f.db.Order("batch_id").Find(&items).Error)
	require.Len(t, items, 2)
	assert.InDelta(t, 1000, items[0].RemainingQty, 0.001)
	assert.InDelta(t, 400, items[1].RemainingQty, 0.001)

	// B'nin tahsisi kalmadı, bakiye boş
	var allocCount int64
	require.NoError(t, f.db.Model(&models.BatchUsageAllocation{}).
		Where("site_id = ?", f.siteB.ID).Count(&allocCount).Error)
	assert.Zero(t, allocCount)

	balances, err := f.svc.ListBalances(f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestDeleteUnsettledUsageBetween_KilitliTahsisVarsaReddedilir(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBrickBatch(t)
	f.generate(t)

	err := f.svc.DeleteUnsettledUsageBetween(f.group.ID, f.siteA.ID, f.siteB.ID)
	assert.ErrorIs(t, err, groupstock.ErrAllocationClaimed)

	var item models.GroupStockBatchItem
	require.NoError(t, f.db.Where("batch_id = ?", batch.ID).First(&item).Error)
	assert.InDelta(t, 700, item.RemainingQty, 0.001)
}

func TestDeleteUnsettledUsageBetween_PartisiOlmayanAlacakliBulunamaz(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)

	// B'nin ödediği parti yok
	err := f.svc.DeleteUnsettledUsageBetween(f.group.ID, f.siteB.ID, f.siteA.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// ----------------------------------------
// Şantiye özeti
// ----------------------------------------

func TestSiteSummaries(t *testing.T) {
	f := newFixture(t)
	f.seedBrickBatch(t)
	stl := f.generate(t)
	_, err := f.svc.RecordPayment(stl.ID, payment(3000))
	require.NoError(t, err)

	summaries, err := f.svc.SiteSummaries(f.group.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	var a, b SiteSummary
	for _, s := range summaries {
		switch s.SiteID {
		case f.siteA.ID:
			a = s
		case f.siteB.ID:
			b = s
		}
	}

	// A: partiyi ödedi, payı 7000; mahsuptan 3000 tahsil etti
	assert.InDelta(t, 10000, a.TotalPaid, 0.001)
	assert.InDelta(t, 7000, a.TotalUsed, 0.001)
	assert.InDelta(t, 3000, a.SettlementReceived, 0.001)
	assert.InDelta(t, 0, a.SettlementPaid, 0.001)

	// B: 3000'lik malzeme kullandı, mahsupla 3000 ödedi
	assert.InDelta(t, 0, b.TotalPaid, 0.001)
	assert.InDelta(t, 3000, b.TotalUsed, 0.001)
	assert.InDelta(t, 3000, b.SettlementPaid, 0.001)
	assert.InDelta(t, 0, b.SettlementReceived, 0.001)
}
