package settlement

import (
	"testing"
	"time"

	"santiye-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balAlloc(batchID, siteID uint, amount float64, date time.Time) models.BatchUsageAllocation {
	return models.BatchUsageAllocation{
		BatchID: batchID,
		SiteID:  siteID,
		Amount:  amount,
		Date:    date,
	}
}

func TestAggregateBalances_HaftaVeSantiyeBazindaGruplar(t *testing.T) {
	// 2025'in 50. ISO haftası: 8-14 Aralık
	week50 := time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC)
	week51 := time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC)

	payingSiteByBatch := map[uint]uint{1: 10, 2: 30}

	allocs := []models.BatchUsageAllocation{
		balAlloc(1, 20, 3000, week50),
		balAlloc(1, 20, 1500, week50),
		balAlloc(1, 20, 2000, week51), // ayrı hafta, ayrı bakiye
		balAlloc(2, 20, 500, week50),  // ayrı alacaklı (şantiye 30)
	}

	balances := AggregateBalances(allocs, payingSiteByBatch)
	require.Len(t, balances, 3)

	// Sıralama: yıl, hafta, alacaklı, borçlu
	assert.Equal(t, uint(10), balances[0].CreditorSiteID)
	assert.Equal(t, uint(20), balances[0].DebtorSiteID)
	assert.Equal(t, 50, balances[0].Week)
	assert.Equal(t, 2025, balances[0].Year)
	assert.InDelta(t, 4500, balances[0].TotalAmountOwed, 0.001)
	assert.Equal(t, 2, balances[0].TransactionCount)

	assert.Equal(t, uint(30), balances[1].CreditorSiteID)
	assert.InDelta(t, 500, balances[1].TotalAmountOwed, 0.001)

	assert.Equal(t, 51, balances[2].Week)
	assert.InDelta(t, 2000, balances[2].TotalAmountOwed, 0.001)
}

func TestAggregateBalances_OdeyenVeKilitliSatirlarHaricTutulur(t *testing.T) {
	week50 := time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC)
	payingSiteByBatch := map[uint]uint{1: 10}

	claimedID := uint(99)
	claimed := balAlloc(1, 20, 1000, week50)
	claimed.SettlementID = &claimedID

	payer := balAlloc(1, 10, 4000, week50)
	payerFlagged := balAlloc(1, 20, 2500, week50)
	payerFlagged.IsPayer = true

	allocs := []models.BatchUsageAllocation{
		claimed,
		payer,        // ödeyenin kendi satırı
		payerFlagged, // is_payer işaretli
		balAlloc(1, 20, 700, week50),
	}

	balances := AggregateBalances(allocs, payingSiteByBatch)
	require.Len(t, balances, 1)
	assert.InDelta(t, 700, balances[0].TotalAmountOwed, 0.001)
	assert.Equal(t, 1, balances[0].TransactionCount)
}

func TestAggregateBalances_YilSiniriISOHaftasiylaCozulur(t *testing.T) {
	// 29 Aralık 2025 ISO takviminde 2026'nın 1. haftasıdır
	boundary := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)
	payingSiteByBatch := map[uint]uint{1: 10}

	balances := AggregateBalances([]models.BatchUsageAllocation{
		balAlloc(1, 20, 1000, boundary),
	}, payingSiteByBatch)

	require.Len(t, balances, 1)
	assert.Equal(t, 1, balances[0].Week)
	assert.Equal(t, 2026, balances[0].Year)
}

func TestAggregateBalances_BosGirdiBosListeDondurur(t *testing.T) {
	balances := AggregateBalances(nil, map[uint]uint{})
	assert.Empty(t, balances)
}
