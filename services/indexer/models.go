package indexer

import "time"

// Creator mirrors a registered creator profile.
type Creator struct {
	Address       string    `gorm:"primaryKey;size:64" json:"address"`
	DisplayName   string    `gorm:"size:256" json:"displayName"`
	RegisteredAt  uint64    `json:"registeredAt"`
	TotalReceived string    `gorm:"size:80;default:'0'" json:"totalReceived"`
	TipCount      uint64    `json:"tipCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Tip mirrors one entry of the tip log. Receipt is unique so replays of the
// same event are ignored.
type Tip struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Receipt   string    `gorm:"uniqueIndex;size:64" json:"receipt"`
	Tipper    string    `gorm:"index;size:64" json:"tipper"`
	Recipient string    `gorm:"index;size:64" json:"recipient"`
	Amount    string    `gorm:"size:80" json:"amount"`
	Message   *string   `gorm:"size:2048" json:"message"`
	Height    uint64    `gorm:"index" json:"height"`
	IndexedAt time.Time `json:"indexedAt"`
}
