package seed

import (
	"fmt"
	"log"

	"BlitzCup/models"

	"gorm.io/gorm"
)

// Load fills an empty development database with 32 participants and a small
// problemset (four problems per band beyond the 16 the opening round needs,
// so conflict retries have something to fall through to).
func Load(db *gorm.DB) {
	var count int64
	if err := db.Model(&models.Participant{}).Count(&count).Error; err != nil {
		log.Fatalf("cannot inspect participants table: %v", err)
	}
	if count > 0 {
		log.Println("[seed] database already populated, skipping")
		return
	}

	for i := 1; i <= 32; i++ {
		participant := models.Participant{
			Handle: fmt.Sprintf("blitz_player_%02d", i),
		}
		participant.Prepare()
		if _, err := participant.SaveParticipant(db); err != nil {
			log.Fatalf("cannot seed participants table: %v", err)
		}
	}

	// Contest ids are placeholders; a real deployment loads the curated
	// problemset dump instead.
	counts := map[int]int{1: 20, 2: 12, 3: 8, 4: 6, 5: 5}
	for band := 1; band <= 5; band++ {
		for i := 0; i < counts[band]; i++ {
			questionID := fmt.Sprintf("%d%c", 1800+band*10+i, 'A'+byte(i%4))
			problem := models.Problem{
				QuestionID: questionID,
				Link:       "https://codeforces.com/problemset/problem/" + FormatRefPath(questionID),
				Band:       band,
			}
			if _, err := problem.SaveProblem(db); err != nil {
				log.Fatalf("cannot seed problemset table: %v", err)
			}
		}
	}

	log.Println("[seed] loaded development participants and problemset")
}

// FormatRefPath turns "1810A" into "1810/A" for problem links
func FormatRefPath(questionID string) string {
	for i := 0; i < len(questionID); i++ {
		if questionID[i] >= 'A' && questionID[i] <= 'Z' {
			return questionID[:i] + "/" + questionID[i:]
		}
	}
	return questionID
}
