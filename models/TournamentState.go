package models

import (
	"time"

	"gorm.io/gorm"
)

// TournamentState is a single-row table: exactly one bracket is live at a
// time.
type TournamentState struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	Live         bool      `gorm:"not null;default:false" json:"status"`
	CurrentRound int       `gorm:"not null;default:0" json:"current_round"`
	UpdatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TournamentState) TableName() string {
	return "tournament_status"
}

// GetTournamentState loads the singleton row, creating it on first use
func GetTournamentState(db *gorm.DB) (*TournamentState, error) {
	state := TournamentState{ID: 1}
	err := db.Where("id = ?", 1).FirstOrCreate(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SetLive flips the live flag and records the round being played
func (s *TournamentState) SetLive(db *gorm.DB, live bool, round int) error {
	err := db.Model(&TournamentState{}).
		Where("id = ?", 1).
		Updates(map[string]interface{}{
			"live":          live,
			"current_round": round,
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		return err
	}
	s.Live = live
	s.CurrentRound = round
	return nil
}
