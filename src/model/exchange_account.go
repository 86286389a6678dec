package model

import "time"

// ExchangeAccount is one set of exchange credentials trading under REAL or
// SIMULATION mode. API credentials are stored encrypted (see src/security).
type ExchangeAccount struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Exchange  string `gorm:"size:50;not null" json:"exchange"`
	TradeMode string `gorm:"size:20;not null;default:REAL" json:"trade_mode"`

	APIKeyHash    string `gorm:"column:api_key;type:text" json:"-"`
	APISecretHash string `gorm:"column:api_secret;type:text" json:"-"`

	// GroupingWindowMinutes is how long consecutive BUY fills of the same
	// symbol keep merging into one position. Zero disables grouping.
	GroupingWindowMinutes int  `gorm:"not null;default:0" json:"grouping_window_minutes"`
	Enabled               bool `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExchangeAccount) TableName() string {
	return "exchange_accounts"
}
