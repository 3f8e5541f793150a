package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Match is one node of the bracket's complete binary tree. MatchNumber is the
// 1-based positional index (root = 1, children of n are 2n and 2n+1), Level is
// the round (1 = round of 32 ... 5 = final). Slots, problem, and winner start
// NULL and are filled exactly once.
type Match struct {
	ID          string `gorm:"primary_key;size:50" json:"id"`
	MatchNumber int    `gorm:"not null;uniqueIndex" json:"match_number"`
	Level       int    `gorm:"not null;index" json:"level"`
	P1          *uint  `gorm:"column:p1" json:"p1"`
	P2          *uint  `gorm:"column:p2" json:"p2"`
	ProblemID   *uint  `gorm:"column:cf_question" json:"cf_question"`
	WinnerID    *uint  `gorm:"column:winner" json:"winner"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Match) TableName() string {
	return "matches"
}

func (m *Match) Validate() map[string]string {
	var err error
	errorsMap := make(map[string]string)

	if m.ID == "" {
		err = errors.New("required id")
		errorsMap["Required_id"] = err.Error()
	}
	if m.MatchNumber < 1 {
		err = errors.New("invalid match number")
		errorsMap["Invalid_match_number"] = err.Error()
	}
	if m.Level < 1 || m.Level > 5 {
		err = errors.New("invalid level")
		errorsMap["Invalid_level"] = err.Error()
	}

	return errorsMap
}

//
// ===============================
// DATABASE OPERATIONS
// ===============================
//

// SaveMatch creates a new match
func (m *Match) SaveMatch(db *gorm.DB) (*Match, error) {
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// FindMatchByID retrieves a match by its string ID (e.g. "ROUND-OF-32-3")
func (m *Match) FindMatchByID(db *gorm.DB, id string) (*Match, error) {
	err := db.Where("id = ?", id).Take(m).Error
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindMatchByNumber retrieves a match by its tree position
func (m *Match) FindMatchByNumber(db *gorm.DB, number int) (*Match, error) {
	err := db.Where("match_number = ?", number).Take(m).Error
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindAllMatches lists the whole bracket ordered by position
func (m *Match) FindAllMatches(db *gorm.DB) (*[]Match, error) {
	var matches []Match
	err := db.Order("match_number").Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return &matches, nil
}

// FindMatchesByLevel lists the matches of one round ordered by position
func (m *Match) FindMatchesByLevel(db *gorm.DB, level int) (*[]Match, error) {
	var matches []Match
	err := db.Where("level = ?", level).Order("match_number").Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return &matches, nil
}

// SetWinner records the winner only if none is set yet. The `winner IS NULL`
// guard is the durable idempotency check: a redelivered event matches zero
// rows and the bracket is not advanced twice. Returns the number of rows
// updated.
func (m *Match) SetWinner(db *gorm.DB, winnerID uint) (int64, error) {
	result := db.Model(&Match{}).
		Where("id = ? AND winner IS NULL", m.ID).
		Updates(map[string]interface{}{
			"winner":     winnerID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		m.WinnerID = &winnerID
	}
	return result.RowsAffected, nil
}

// FillSlot writes a participant into slot 1 or 2 only while that slot is
// empty (optimistic concurrency: sibling advancements never race on the same
// column, duplicates match zero rows). Returns the number of rows updated.
func (m *Match) FillSlot(db *gorm.DB, slot int, participantID uint) (int64, error) {
	var column string
	switch slot {
	case 1:
		column = "p1"
	case 2:
		column = "p2"
	default:
		return 0, errors.New("slot must be 1 or 2")
	}

	result := db.Model(&Match{}).
		Where("match_number = ? AND "+column+" IS NULL", m.MatchNumber).
		Updates(map[string]interface{}{
			column:       participantID,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// AssignProblem writes the provisioned problem onto the match
func (m *Match) AssignProblem(db *gorm.DB, problemID uint) error {
	err := db.Model(&Match{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"cf_question": problemID,
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		return err
	}
	m.ProblemID = &problemID
	return nil
}

// DeleteAllMatches clears the bracket (reset)
func DeleteAllMatches(db *gorm.DB) (int64, error) {
	result := db.Where("match_number >= ?", 1).Delete(&Match{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
