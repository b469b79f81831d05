package models

import "time"

// Horse sexes.
const (
	SexMare     = "mare"
	SexGelding  = "gelding"
	SexStallion = "stallion"
	SexColt     = "colt"
	SexFilly    = "filly"
)

// Horse colours.
const (
	ColorBay      = "bay"
	ColorChestnut = "chestnut"
	ColorGrey     = "grey"
	ColorBlack    = "black"
	ColorBrown    = "brown"
	ColorPalomino = "palomino"
	ColorSkewbald = "skewbald"
	ColorPiebald  = "piebald"
	ColorRoan     = "roan"
	ColorDun      = "dun"
	ColorCream    = "cream"
	ColorOther    = "other"
)

// Horse is an individual horse record.
type Horse struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"not null;index"`
	DateOfBirth    *time.Time
	Age            *int   // years, used when DOB is unknown
	Color          string `gorm:"size:20"`
	Sex            string `gorm:"size:20"`
	Breeding       string // sire/dam free text
	DamID          *uint
	Dam            *Horse `gorm:"foreignKey:DamID"`
	SireName       string
	Notes          string
	PassportNumber string
	HasPassport    bool `gorm:"not null;default:true"`
	IsActive       bool `gorm:"not null;default:true;index"` // false once the horse has left permanently
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CalculatedAge returns the age derived from DOB when known, otherwise the
// stored age field.
func (h *Horse) CalculatedAge(today time.Time) *int {
	if h.DateOfBirth == nil {
		return h.Age
	}
	dob := *h.DateOfBirth
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return &years
}

func (h *Horse) IsMare() bool { return h.Sex == SexMare }
