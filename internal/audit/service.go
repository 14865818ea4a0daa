package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"santiye-backend/internal/database"
	"santiye-backend/internal/models"
)

type LogOptions struct {
	SiteID      *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func WriteLog(opts LogOptions) error {
	// PostgreSQL jsonb için boş string yerine "null" JSON string'i kullanmalıyız
	beforeStr := "null" // Default: null JSON
	afterStr := "null"  // Default: null JSON

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		SiteID:      opts.SiteID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
		Undone:      false,
		IsUndone:    false,
	}

	if err := database.DB.Create(&log).Error; err != nil {
		return fmt.Errorf("audit log kaydedilemedi: %w", err)
	}

	return nil
}

// UndoLog - Bir audit log'u undo et. Mahsup/parti kayıtları buradan geri
// alınmaz; onların kendi iptal akışı var (settlement paketi).
func UndoLog(logID uint, userID uint, userName string) error {
	var log models.AuditLog
	if err := database.DB.First(&log, "id = ?", logID).Error; err != nil {
		return fmt.Errorf("log bulunamadı: %w", err)
	}

	// Zaten undo edilmiş mi?
	if log.IsUndone {
		return fmt.Errorf("bu işlem zaten geri alınmış")
	}

	// Undo işlemini gerçekleştir
	switch log.Action {
	case models.AuditActionCreate:
		// Create ise entity'yi sil
		if err := deleteEntity(log.EntityType, log.EntityID); err != nil {
			return fmt.Errorf("entity silinemedi: %w", err)
		}

	case models.AuditActionUpdate:
		// Update ise önceki haline geri döndür
		if err := restoreEntity(log.EntityType, log.EntityID, log.BeforeData); err != nil {
			return fmt.Errorf("entity geri yüklenemedi: %w", err)
		}

	case models.AuditActionDelete:
		// Delete ise entity'yi geri oluştur (create)
		if err := recreateEntity(log.EntityType, log.BeforeData); err != nil {
			return fmt.Errorf("entity geri oluşturulamadı: %w", err)
		}

	default:
		return fmt.Errorf("bu işlem türü geri alınamaz")
	}

	// Log'u işaretle
	now := time.Now()
	log.IsUndone = true
	log.UndoneBy = &userID
	log.UndoneAt = &now

	if err := database.DB.Save(&log).Error; err != nil {
		return fmt.Errorf("log güncellenemedi: %w", err)
	}

	// Undo işlemi için yeni bir log oluştur
	undoLog := models.AuditLog{
		SiteID:      log.SiteID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      models.AuditActionUndo,
		Description: fmt.Sprintf("Geri alındı: %s", log.Description),
		BeforeData:  log.AfterData,
		AfterData:   log.BeforeData,
		Undone:      true,
		IsUndone:    false,
	}

	if err := database.DB.Create(&undoLog).Error; err != nil {
		return fmt.Errorf("undo log kaydedilemedi: %w", err)
	}

	return nil
}

// deleteEntity - Entity'yi sil
func deleteEntity(entityType string, entityID uint) error {
	switch entityType {
	case "wallet_entry":
		return database.DB.Delete(&models.WalletEntry{}, "id = ?", entityID).Error
	case "material":
		return database.DB.Delete(&models.Material{}, "id = ?", entityID).Error
	case "vendor":
		return database.DB.Delete(&models.Vendor{}, "id = ?", entityID).Error
	case "vendor_price":
		return database.DB.Delete(&models.VendorMaterialPrice{}, "id = ?", entityID).Error
	case "equipment":
		return database.DB.Delete(&models.Equipment{}, "id = ?", entityID).Error
	case "equipment_assignment":
		return database.DB.Delete(&models.EquipmentAssignment{}, "id = ?", entityID).Error
	case "group_stock_batch", "group_stock_transaction", "settlement", "settlement_payment":
		return fmt.Errorf("mahsup ve parti kayıtları buradan geri alınamaz, mahsup iptal akışını kullan")
	default:
		return fmt.Errorf("bilinmeyen entity tipi: %s", entityType)
	}
}

// recreateEntity - Silinen entity'yi geri oluştur
func recreateEntity(entityType string, dataJSON string) error {
	switch entityType {
	case "wallet_entry":
		var entry models.WalletEntry
		if err := json.Unmarshal([]byte(dataJSON), &entry); err != nil {
			return err
		}
		entry.ID = 0
		return database.DB.Create(&entry).Error

	case "vendor_price":
		var price models.VendorMaterialPrice
		if err := json.Unmarshal([]byte(dataJSON), &price); err != nil {
			return err
		}
		price.ID = 0
		return database.DB.Create(&price).Error

	case "equipment_assignment":
		var assignment models.EquipmentAssignment
		if err := json.Unmarshal([]byte(dataJSON), &assignment); err != nil {
			return err
		}
		assignment.ID = 0
		return database.DB.Create(&assignment).Error

	case "group_stock_batch", "group_stock_transaction", "settlement", "settlement_payment":
		return fmt.Errorf("mahsup ve parti kayıtları buradan geri alınamaz, mahsup iptal akışını kullan")

	default:
		return fmt.Errorf("bilinmeyen entity tipi: %s", entityType)
	}
}

// restoreEntity - Update edilen entity'yi önceki haline döndür
func restoreEntity(entityType string, entityID uint, dataJSON string) error {
	switch entityType {
	case "wallet_entry":
		var entry models.WalletEntry
		if err := json.Unmarshal([]byte(dataJSON), &entry); err != nil {
			return err
		}
		return database.DB.Model(&models.WalletEntry{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"user_id":     entry.UserID,
			"site_id":     entry.SiteID,
			"type":        entry.Type,
			"amount":      entry.Amount,
			"date":        entry.Date,
			"description": entry.Description,
		}).Error

	case "material":
		var material models.Material
		if err := json.Unmarshal([]byte(dataJSON), &material); err != nil {
			return err
		}
		return database.DB.Model(&models.Material{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":     material.Name,
			"unit":     material.Unit,
			"category": material.Category,
		}).Error

	case "vendor_price":
		var price models.VendorMaterialPrice
		if err := json.Unmarshal([]byte(dataJSON), &price); err != nil {
			return err
		}
		return database.DB.Model(&models.VendorMaterialPrice{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"vendor_id":   price.VendorID,
			"material_id": price.MaterialID,
			"unit_price":  price.UnitPrice,
			"valid_from":  price.ValidFrom,
		}).Error

	case "equipment":
		var equipment models.Equipment
		if err := json.Unmarshal([]byte(dataJSON), &equipment); err != nil {
			return err
		}
		return database.DB.Model(&models.Equipment{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":    equipment.Name,
			"status":  equipment.Status,
			"site_id": equipment.SiteID,
		}).Error

	case "group_stock_batch", "group_stock_transaction", "settlement", "settlement_payment":
		return fmt.Errorf("mahsup ve parti kayıtları buradan geri alınamaz, mahsup iptal akışını kullan")

	default:
		return fmt.Errorf("bilinmeyen entity tipi: %s", entityType)
	}
}
