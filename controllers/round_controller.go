package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode"

	"BlitzCup/models"

	"github.com/gin-gonic/gin"
)

// WorkerClient talks to the external match-execution worker that polls for
// each match's first solver.
type WorkerClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewWorkerClient(baseURL string) *WorkerClient {
	return &WorkerClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type trackingRequest struct {
	Handle1   string `json:"handle1"`
	Handle2   string `json:"handle2"`
	ProblemID string `json:"problem_id"`
	MatchID   string `json:"match_id"`
}

func (w *WorkerClient) post(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := w.HTTPClient.Post(w.BaseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// StartTracking asks the worker to watch one match
func (w *WorkerClient) StartTracking(req trackingRequest) error {
	return w.post("/start_tracking", req)
}

// BeginTournament hands the freshly seeded bracket to the worker
func (w *WorkerClient) BeginTournament(matches []models.Match) error {
	return w.post("/begin_tournament", map[string]interface{}{"matches": matches})
}

// FormatProblemRef rewrites an external reference like "1800A" into the
// worker's "1800/A" form by inserting a slash before the index letter.
func FormatProblemRef(questionID string) string {
	for i, r := range questionID {
		if unicode.IsLetter(r) {
			return questionID[:i] + "/" + questionID[i:]
		}
	}
	return questionID
}

type startTrackingRequest struct {
	MatchID string `json:"matchId"`
}

// StartTracking resolves a match's occupants and problem and asks the worker
// to start watching it.
func (server *Server) StartTracking(c *gin.Context) {
	var req startTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MatchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Match ID is required"})
		return
	}

	var match models.Match
	if _, err := match.FindMatchByID(server.DB, req.MatchID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}
	if match.P1 == nil || match.P2 == nil || match.ProblemID == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Match is not fully provisioned yet"})
		return
	}

	var occupant1, occupant2 models.Participant
	if _, err := occupant1.FindParticipantByID(server.DB, *match.P1); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "One or both players not found"})
		return
	}
	if _, err := occupant2.FindParticipantByID(server.DB, *match.P2); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "One or both players not found"})
		return
	}

	var problem models.Problem
	if _, err := problem.FindProblemByID(server.DB, *match.ProblemID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
		return
	}

	tracking := trackingRequest{
		Handle1:   occupant1.Handle,
		Handle2:   occupant2.Handle,
		ProblemID: FormatProblemRef(problem.QuestionID),
		MatchID:   match.ID,
	}
	if err := server.Worker.StartTracking(tracking); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to start tracking on worker"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tracking started successfully"})
}
