package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecore/src/database"
	"tradecore/src/model"
)

// AccountRepository handles exchange accounts and their per-account default
// configurations.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new repository instance using the main
// read/write database.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AccountRepository) WithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByID fetches an account. Returns (nil, nil) if not found.
func (r *AccountRepository) FindByID(ctx context.Context, id uint) (*model.ExchangeAccount, error) {
	var account model.ExchangeAccount

	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

// FindEnabled lists every enabled account.
func (r *AccountRepository) FindEnabled(ctx context.Context) ([]model.ExchangeAccount, error) {
	var accounts []model.ExchangeAccount

	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&accounts).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "FindEnabled",
		}).WithError(err).Error("failed to list enabled accounts")
		return nil, err
	}

	return accounts, nil
}

// Save upserts an account row.
func (r *AccountRepository) Save(ctx context.Context, account *model.ExchangeAccount) error {
	err := r.db.WithContext(ctx).Save(account).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "AccountRepository",
			"op":         "Save",
			"account_id": account.ID,
		}).WithError(err).Error("failed to save account")
		return err
	}
	return nil
}

// UpdateCredentials stores freshly encrypted API credentials for an account.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, accountID uint, apiKeyHash, apiSecretHash string) error {
	err := r.db.WithContext(ctx).Model(&model.ExchangeAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"api_key":    apiKeyHash,
			"api_secret": apiSecretHash,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "AccountRepository",
			"op":         "UpdateCredentials",
			"account_id": accountID,
		}).WithError(err).Error("failed to update credentials")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "AccountRepository",
		"op":         "UpdateCredentials",
		"account_id": accountID,
	}).Info("credentials updated")

	return nil
}

// GetRiskDefaults fetches per-account default risk-exit configuration for a
// side. Returns (nil, nil) if none configured.
func (r *AccountRepository) GetRiskDefaults(ctx context.Context, accountID uint, side string) (*model.RiskExitDefaults, error) {
	var defaults model.RiskExitDefaults

	err := r.db.WithContext(ctx).
		Where("exchange_account_id = ? AND side = ?", accountID, side).
		First(&defaults).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &defaults, nil
}

// SaveRiskDefaults validates and upserts per-account defaults.
func (r *AccountRepository) SaveRiskDefaults(ctx context.Context, defaults *model.RiskExitDefaults) error {
	if err := defaults.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(defaults).Error
}

// GetConfirmationConfig fetches the signal confirmation config for one side of
// an account. Returns (nil, nil) if none configured.
func (r *AccountRepository) GetConfirmationConfig(ctx context.Context, accountID uint, side string) (*model.ConfirmationConfig, error) {
	var config model.ConfirmationConfig

	err := r.db.WithContext(ctx).
		Where("exchange_account_id = ? AND side = ?", accountID, side).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &config, nil
}

// SaveConfirmationConfig validates and upserts a confirmation config row.
func (r *AccountRepository) SaveConfirmationConfig(ctx context.Context, config *model.ConfirmationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(config).Error
}
