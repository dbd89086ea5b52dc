package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StandStatus string

const (
	StandAvailable StandStatus = "available"
	StandReserved  StandStatus = "reserved"
	StandSold      StandStatus = "sold"
)

func (s StandStatus) Valid() bool {
	switch s {
	case StandAvailable, StandReserved, StandSold:
		return true
	}
	return false
}

// Stand is a sellable unit of event space. HolderID is empty iff the stand
// is available.
type Stand struct {
	ID          string
	EventID     string
	Name        string
	Description string
	Price       decimal.Decimal
	Status      StandStatus
	HolderID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Consistent reports whether the holder/status pairing is valid.
func (s Stand) Consistent() bool {
	return (s.Status == StandAvailable) == (s.HolderID == "")
}
