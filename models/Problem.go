package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNoUnusedProblems is returned when the pool has no free problem left in
// the requested band.
var ErrNoUnusedProblems = errors.New("no unused problems available for band")

// Problem is one pooled Codeforces problem. QuestionID is the external
// reference (contest id + index, e.g. "1800A"), Band the difficulty tier
// aligned to the bracket level. Used is the reservation flag; rows are never
// deleted, only flipped between used and unused.
type Problem struct {
	ID         uint      `gorm:"primary_key;autoIncrement" json:"id"`
	QuestionID string    `gorm:"size:20;not null;unique" json:"question_id"`
	Link       string    `gorm:"size:255;not null" json:"link"`
	Band       int       `gorm:"not null;index" json:"band"`
	Used       bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Problem) TableName() string {
	return "problemset"
}

func (p *Problem) Validate() map[string]string {
	var err error
	errorsMap := make(map[string]string)

	if p.QuestionID == "" {
		err = errors.New("required question id")
		errorsMap["Required_question_id"] = err.Error()
	}
	if p.Link == "" {
		err = errors.New("required link")
		errorsMap["Required_link"] = err.Error()
	}
	if p.Band < 1 || p.Band > 5 {
		err = errors.New("invalid band")
		errorsMap["Invalid_band"] = err.Error()
	}

	return errorsMap
}

//
// ===============================
// DATABASE OPERATIONS
// ===============================
//

// SaveProblem creates a new pooled problem
func (p *Problem) SaveProblem(db *gorm.DB) (*Problem, error) {
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// ReserveNextProblem picks an unused problem of the band and flips its Used
// flag. The `used = false` guard on the update makes the reservation safe
// against a concurrent provisioner grabbing the same row: whoever matches
// zero rows moves on to the next candidate.
func ReserveNextProblem(db *gorm.DB, band int) (*Problem, error) {
	for {
		var problem Problem
		err := db.Where("band = ? AND used = ?", band, false).
			Order("id").
			First(&problem).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoUnusedProblems
			}
			return nil, err
		}

		result := db.Model(&Problem{}).
			Where("id = ? AND used = ?", problem.ID, false).
			Updates(map[string]interface{}{
				"used":       true,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			problem.Used = true
			return &problem, nil
		}
		// Lost the race for this row, try the next unused one.
	}
}

// ReserveProblemBatch reserves n unused problems of the band up front
// (seeding reserves the exact match count in one go).
func ReserveProblemBatch(db *gorm.DB, band, n int) ([]Problem, error) {
	problems := make([]Problem, 0, n)
	for i := 0; i < n; i++ {
		problem, err := ReserveNextProblem(db, band)
		if err != nil {
			return nil, err
		}
		problems = append(problems, *problem)
	}
	return problems, nil
}

// Release puts a rejected problem back into the pool
func (p *Problem) Release(db *gorm.DB) error {
	err := db.Model(&Problem{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"used":       false,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return err
	}
	p.Used = false
	return nil
}

// FindProblemByID retrieves a problem by ID
func (p *Problem) FindProblemByID(db *gorm.DB, id uint) (*Problem, error) {
	err := db.Where("id = ?", id).Take(p).Error
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CountUnusedProblems reports how many free problems remain in a band
func CountUnusedProblems(db *gorm.DB, band int) (int64, error) {
	var count int64
	err := db.Model(&Problem{}).
		Where("band = ? AND used = ?", band, false).
		Count(&count).Error
	return count, err
}

// ReleaseAllProblems returns every reserved problem to the pool (reset)
func ReleaseAllProblems(db *gorm.DB) error {
	return db.Model(&Problem{}).
		Where("used = ?", true).
		Update("used", false).Error
}
