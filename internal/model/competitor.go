package model

import "time"

// CompetitorConfig describes one competitor price monitoring target.
type CompetitorConfig struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"not null"`
	WebsiteURL      *string
	MonitorType     string `gorm:"size:20;not null"` // api | scraper | manual
	APIEndpoint     *string
	APIKey          *string
	ScraperEndpoint *string
	FeedFormat      string `gorm:"size:10;not null;default:'json'"`
	MatchBy         string `gorm:"size:10;not null;default:'sku'"` // sku | upc | name

	SyncFrequencyHours int        `gorm:"not null;default:24"`
	NextSyncAt         *time.Time `gorm:"index"`
	LastSyncAt         *time.Time
	LastCheckStatus    *string
	LastCheckError     *string
	LeaseToken         *string
	LeaseExpiresAt     *time.Time

	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CompetitorConfig) TableName() string { return "competitor_configs" }
