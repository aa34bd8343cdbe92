package repository

import (
	"gorm.io/gorm"

	"payment-orchestrator/internal/models"
)

// defaultConfigs are the method rows created on first boot. Everything except
// pay-on-delivery starts disabled; enabling a live gateway method is an
// operator action.
var defaultConfigs = []models.PaymentConfig{
	{Method: models.MethodCard, Provider: models.ProviderMonnify},
	{Method: models.MethodTransfer, Provider: models.ProviderMonnify},
	{Method: models.MethodVirtualAccount, Provider: models.ProviderMonnify},
	{Method: models.MethodMonnify, Provider: models.ProviderMonnify},
	{Method: models.MethodPayOnDelivery, Provider: models.ProviderInternal, IsEnabled: true},
}

// SeedDefaults creates the settings row and the method configuration rows if
// they do not exist. Safe to run on every boot.
func SeedDefaults(db *gorm.DB) error {
	var settingsCount int64
	if err := db.Model(&models.PaymentSettings{}).Count(&settingsCount).Error; err != nil {
		return err
	}
	if settingsCount == 0 {
		settings := &models.PaymentSettings{
			ServiceCharge: 100,
			TopupCharge:   50,
			VATRate:       0.075,
		}
		if err := db.Create(settings).Error; err != nil {
			return err
		}
	}

	for _, cfg := range defaultConfigs {
		var existing models.PaymentConfig
		err := db.Where("method = ?", cfg.Method).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			create := cfg
			if createErr := db.Create(&create).Error; createErr != nil {
				return createErr
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
