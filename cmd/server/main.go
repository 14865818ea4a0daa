package main

import (
	"log"
	"strings"

	"santiye-backend/internal/audit"
	"santiye-backend/internal/auth"
	"santiye-backend/internal/config"
	"santiye-backend/internal/database"
	"santiye-backend/internal/equipment"
	"santiye-backend/internal/groupstock"
	"santiye-backend/internal/materials"
	"santiye-backend/internal/models"
	"santiye-backend/internal/settlement"
	"santiye-backend/internal/sites"
	"santiye-backend/internal/vendors"
	"santiye-backend/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	// CORS origins'i virgülle ayrılmış string'den array'e çevir
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Super admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))

	// Şantiye grubu yönetimi
	adminRoutes.Post("/site-groups", sites.CreateSiteGroupHandler())
	adminRoutes.Get("/site-groups", sites.ListSiteGroupsHandler())
	adminRoutes.Delete("/site-groups/:id", sites.DeleteSiteGroupHandler())

	// Şantiye yönetimi
	adminRoutes.Post("/sites", sites.CreateSiteHandler())
	adminRoutes.Get("/sites", sites.ListSitesHandler())
	adminRoutes.Get("/sites/:id", sites.GetSiteHandler())
	adminRoutes.Put("/sites/:id", sites.UpdateSiteHandler())
	adminRoutes.Delete("/sites/:id", sites.DeleteSiteHandler())
	adminRoutes.Post("/sites/:id/engineer", sites.CreateSiteEngineerHandler())
	adminRoutes.Get("/sites/:id/engineers", sites.ListSiteEngineersHandler())

	// Malzeme kataloğu
	adminRoutes.Post("/materials", materials.CreateMaterialHandler())
	adminRoutes.Put("/materials/:id", materials.UpdateMaterialHandler())
	adminRoutes.Delete("/materials/:id", materials.DeleteMaterialHandler())

	// Tedarikçi yönetimi
	adminRoutes.Post("/vendors", vendors.CreateVendorHandler())
	adminRoutes.Get("/vendors", vendors.ListVendorsHandler())
	adminRoutes.Get("/vendors/:id", vendors.GetVendorHandler())
	adminRoutes.Put("/vendors/:id", vendors.UpdateVendorHandler())
	adminRoutes.Delete("/vendors/:id", vendors.DeleteVendorHandler())
	adminRoutes.Post("/vendors/:id/prices", vendors.CreateVendorPriceHandler())
	adminRoutes.Get("/vendors/:id/prices", vendors.ListVendorPricesHandler())
	adminRoutes.Delete("/vendors/:id/prices/:priceId", vendors.DeleteVendorPriceHandler())

	// Ekipman yönetimi
	adminRoutes.Post("/equipment", equipment.CreateEquipmentHandler())
	adminRoutes.Put("/equipment/:id", equipment.UpdateEquipmentHandler())
	adminRoutes.Post("/equipment/:id/assign", equipment.AssignEquipmentHandler())
	adminRoutes.Post("/equipment/:id/release", equipment.ReleaseEquipmentHandler())

	// Ortak (auth gerektiren) route'lar

	// Malzeme ve ekipman listeleri
	protected.Get("/materials", materials.ListMaterialsHandler())
	protected.Get("/materials/:id", materials.GetMaterialHandler())
	protected.Get("/equipment", equipment.ListEquipmentHandler())
	protected.Get("/equipment/:id/assignments", equipment.ListAssignmentsHandler())

	// Mühendis kasası
	protected.Post("/wallet/entries", wallet.CreateWalletEntryHandler())
	protected.Get("/wallet", wallet.GetWalletSummaryHandler())
	protected.Delete("/wallet/entries/:id", wallet.DeleteWalletEntryHandler())

	// Grup stoğu: toplu alımlar ve kullanım
	protected.Post("/group-stock/batches", groupstock.CreateBatchHandler())
	protected.Get("/group-stock/batches", groupstock.ListBatchesHandler())
	protected.Get("/group-stock/batches/:id", groupstock.GetBatchHandler())
	protected.Post("/group-stock/batches/:id/usage", groupstock.RecordUsageHandler())
	protected.Post("/group-stock/batches/:id/close", groupstock.CloseBatchHandler())
	protected.Delete("/group-stock/batches/:id", groupstock.DeleteBatchHandler())
	protected.Delete("/group-stock/batches/:id/usage/:siteId", settlement.DeleteUnsettledUsageHandler())
	protected.Delete("/group-stock/usage", settlement.DeleteUnsettledUsageBetweenHandler())

	// Haftalık bakiyeler ve mahsuplaşma
	protected.Get("/settlements/balances", settlement.ListBalancesHandler())
	protected.Get("/settlements/summary", settlement.SiteSummariesHandler())
	protected.Post("/settlements/generate", settlement.GenerateSettlementHandler())
	protected.Post("/settlements/pay", settlement.SettlePayHandler())
	protected.Get("/settlements", settlement.ListSettlementsHandler())
	protected.Get("/settlements/:id", settlement.GetSettlementHandler())
	protected.Post("/settlements/:id/approve", settlement.ApproveSettlementHandler())
	protected.Post("/settlements/:id/payments", settlement.RecordPaymentHandler())
	protected.Post("/settlements/:id/cancel", settlement.CancelSettlementHandler())
	protected.Delete("/settlements/:id", settlement.DeleteSettlementHandler())

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler())

	log.Println("Server çalışıyor port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
