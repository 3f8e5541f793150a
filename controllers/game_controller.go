package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"BlitzCup/bracket"
	"BlitzCup/cache"
	"BlitzCup/models"

	"github.com/gin-gonic/gin"
)

const tournamentStatusCacheKey = "tournament:status"

type startGameRequest struct {
	Round int `json:"round"`
}

// StartGame seeds the requested round and flips the tournament live
func (server *Server) StartGame(c *gin.Context) {
	var req startGameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Round < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid round parameter"})
		return
	}

	// Seeding runs to completion once started; a dropped client must not
	// cancel it halfway into a partially built tree.
	err := server.Engine.SeedRound(context.Background(), req.Round)
	if err != nil {
		switch {
		case errors.Is(err, bracket.ErrInsufficientParticipants):
			c.JSON(http.StatusNotFound, gin.H{"error": "Not enough users found for this round"})
		case errors.Is(err, bracket.ErrInsufficientProblems):
			c.JSON(http.StatusNotFound, gin.H{"error": "Not enough unused questions available for this round"})
		case errors.Is(err, bracket.ErrTournamentLive):
			c.JSON(http.StatusConflict, gin.H{"error": "A tournament is already running"})
		default:
			log.Printf("Error seeding round %d: %v", req.Round, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	invalidateStatusCache(c)

	// Hand the bracket over to the execution worker in the background;
	// a failure is the operator's problem, not the seeding call's.
	go server.notifyWorkerTournamentStart()

	c.JSON(http.StatusOK, gin.H{"message": "Successfully initialized tournament"})
}

func (server *Server) notifyWorkerTournamentStart() {
	var m models.Match
	matches, err := m.FindAllMatches(server.DB)
	if err != nil {
		log.Printf("Error loading matches for worker handoff: %v", err)
		return
	}
	if err := server.Worker.BeginTournament(*matches); err != nil {
		log.Printf("Error starting tournament on worker: %v", err)
	}
}

// Reset clears the bracket, releases all problems, and resets participants
func (server *Server) Reset(c *gin.Context) {
	if err := server.Engine.Reset(c.Request.Context()); err != nil {
		log.Printf("Error resetting game: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset game"})
		return
	}

	invalidateStatusCache(c)

	c.JSON(http.StatusOK, gin.H{"message": "Game reset successfully"})
}

// GetTournamentStatus serves the live flag, cached briefly in Redis
func (server *Server) GetTournamentStatus(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, err := cache.Get(ctx, tournamentStatusCacheKey); err == nil && cached != "" {
		var state models.TournamentState
		if err := json.Unmarshal([]byte(cached), &state); err == nil {
			c.JSON(http.StatusOK, gin.H{"status": state.Live, "current_round": state.CurrentRound})
			return
		}
	}

	state, err := models.GetTournamentState(server.DB)
	if err != nil {
		log.Printf("Error fetching tournament status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tournament status"})
		return
	}

	if payload, err := json.Marshal(state); err == nil {
		if err := cache.Set(ctx, tournamentStatusCacheKey, payload, 30*time.Second); err != nil {
			log.Printf("warning: could not cache tournament status: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": state.Live, "current_round": state.CurrentRound})
}

func invalidateStatusCache(c *gin.Context) {
	if err := cache.Delete(c.Request.Context(), tournamentStatusCacheKey); err != nil {
		log.Printf("warning: could not invalidate status cache: %v", err)
	}
}

// GetMatches lists the whole bracket
func (server *Server) GetMatches(c *gin.Context) {
	var m models.Match
	matches, err := m.FindAllMatches(server.DB)
	if err != nil {
		log.Printf("Error fetching matches: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, matches)
}

// GetMatchesFirst lists only the opening round
func (server *Server) GetMatchesFirst(c *gin.Context) {
	var m models.Match
	matches, err := m.FindMatchesByLevel(server.DB, 1)
	if err != nil {
		log.Printf("Error fetching matches: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, matches)
}

// GetParticipants lists registered participants
func (server *Server) GetParticipants(c *gin.Context) {
	var p models.Participant
	participants, err := p.FindAllParticipants(server.DB)
	if err != nil {
		log.Printf("Error fetching participants: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch participants"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": participants})
}
