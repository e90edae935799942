package models

import "github.com/savagetongue/mess-connect0209/entity"

// DefaultMonthlyFee is 3000.00 in minor units.
const DefaultMonthlyFee int64 = 300000

type Setting struct {
	ID         string `json:"id"`
	MonthlyFee int64  `json:"monthlyFee"`
	MessRules  string `json:"messRules,omitempty"`
}

func (s Setting) EntityID() string { return s.ID }

var SettingDescriptor = entity.Descriptor[Setting]{
	TypeName:  "setting",
	IndexName: "settings",
	Initial:   Setting{ID: entity.SingletonID, MonthlyFee: DefaultMonthlyFee},
}
