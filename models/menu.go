package models

import "github.com/savagetongue/mess-connect0209/entity"

var WeekDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type MenuDay struct {
	Day       string `json:"day"`
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Dinner    string `json:"dinner"`
}

// WeeklyMenu is a singleton holding one entry per weekday.
type WeeklyMenu struct {
	ID   string    `json:"id"`
	Days []MenuDay `json:"days"`
}

func (m WeeklyMenu) EntityID() string { return m.ID }

func emptyWeek() []MenuDay {
	days := make([]MenuDay, len(WeekDays))
	for i, d := range WeekDays {
		days[i] = MenuDay{Day: d}
	}
	return days
}

var MenuDescriptor = entity.Descriptor[WeeklyMenu]{
	TypeName:  "menu",
	IndexName: "menus",
	Initial:   WeeklyMenu{ID: entity.SingletonID, Days: emptyWeek()},
}
