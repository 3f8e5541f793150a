package models

import (
	"errors"
	"html"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Participant struct {
	ID        uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Handle    string    `gorm:"size:100;not null;unique;column:cf_handle" json:"cf_handle"`
	MaxRound  int       `gorm:"not null;default:0" json:"max_round"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

//
// ===============================
// PREPARE & VALIDATE
// ===============================
//

func (p *Participant) Prepare() {
	p.Handle = html.EscapeString(strings.TrimSpace(p.Handle))
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
}

func (p *Participant) Validate() map[string]string {
	var err error
	errorsMap := make(map[string]string)

	if p.Handle == "" {
		err = errors.New("required handle")
		errorsMap["Required_handle"] = err.Error()
	}
	if p.MaxRound < 0 {
		err = errors.New("invalid max round")
		errorsMap["Invalid_max_round"] = err.Error()
	}

	return errorsMap
}

//
// ===============================
// DATABASE OPERATIONS
// ===============================
//

// SaveParticipant creates a new participant
func (p *Participant) SaveParticipant(db *gorm.DB) (*Participant, error) {
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// FindParticipantByID retrieves a participant by ID
func (p *Participant) FindParticipantByID(db *gorm.DB, id uint) (*Participant, error) {
	err := db.Where("id = ?", id).Take(p).Error
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindParticipantByHandle retrieves a participant by Codeforces handle
func (p *Participant) FindParticipantByHandle(db *gorm.DB, handle string) (*Participant, error) {
	err := db.Where("cf_handle = ?", handle).Take(p).Error
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindAllParticipants lists every registered participant
func (p *Participant) FindAllParticipants(db *gorm.DB) (*[]Participant, error) {
	var participants []Participant
	err := db.Order("id").Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return &participants, nil
}

// FindEligibleParticipants returns participants whose highest reached round
// qualifies them for the given round.
func (p *Participant) FindEligibleParticipants(db *gorm.DB, round, limit int) (*[]Participant, error) {
	var participants []Participant
	err := db.Where("max_round = ?", round-1).Limit(limit).Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return &participants, nil
}

// AdvanceMaxRound raises the participant's highest reached round. The
// conditional keeps redelivered events from ever lowering it.
func (p *Participant) AdvanceMaxRound(db *gorm.DB, round int) error {
	return db.Model(&Participant{}).
		Where("id = ? AND max_round < ?", p.ID, round).
		Updates(map[string]interface{}{
			"max_round":  round,
			"updated_at": time.Now(),
		}).Error
}

// SetMaxRoundForAll stamps the given round on a batch of participants (used at seeding)
func SetMaxRoundForAll(db *gorm.DB, ids []uint, round int) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&Participant{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"max_round":  round,
			"updated_at": time.Now(),
		}).Error
}

// ResetMaxRounds puts every participant back to round zero
func ResetMaxRounds(db *gorm.DB) error {
	return db.Model(&Participant{}).
		Where("max_round > 0").
		Update("max_round", 0).Error
}
