package models

// QuoteSequence holds the last issued value of a named counter.
type QuoteSequence struct {
	Name      string `gorm:"column:name;primaryKey"`
	LastValue int64  `gorm:"column:last_value;not null"`
}
