package model

import (
	"gorm.io/datatypes"
)

// FillModel is one confirmed exchange fill as stored in the trade history
// database. Detail keeps per-kind context (lot id, tier, skim, funding split)
// as JSON rather than a column per field.
type FillModel struct {
	ID       int64          `gorm:"column:id;primaryKey"`
	BotID    string         `gorm:"column:bot_id;index:idx_fills_bot_time,priority:1"`
	Symbol   string         `gorm:"column:symbol;index"`
	Side     string         `gorm:"column:side"`
	Kind     string         `gorm:"column:kind;index"`
	OrderID  string         `gorm:"column:order_id"`
	Qty      float64        `gorm:"column:qty"`
	Price    float64        `gorm:"column:price"`
	Quote    float64        `gorm:"column:quote"`
	Detail   datatypes.JSON `gorm:"column:detail;type:TEXT"`
	AtMillis int64          `gorm:"column:at;index:idx_fills_bot_time,priority:2"`
}

func (FillModel) TableName() string { return "fills" }
