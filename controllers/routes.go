package controllers

import (
	"net/http"

	"BlitzCup/middlewares"

	"github.com/gin-gonic/gin"
)

func (s *Server) initializeRoutes() {

	s.Router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "BlitzCup API"})
	})

	v1 := s.Router.Group("/api/v1")
	{
		// Tournament lifecycle routes
		game := v1.Group("/game")
		game.POST("/start-game", middlewares.AdminRateLimitMiddleware(), s.StartGame)
		game.POST("/reset", middlewares.AdminRateLimitMiddleware(), s.Reset)
		game.GET("/tournament-status", s.GetTournamentStatus)
		game.GET("/get-matches", s.GetMatches)
		game.GET("/get-matches-first", s.GetMatchesFirst)
		game.GET("/get-participants", s.GetParticipants)

		// Tracking handoff to the execution worker
		v1.POST("/round/start-game", s.StartTracking)

		// Manual verification check
		v1.POST("/question/verify", s.VerifySubmissions)
	}

	// Live bracket updates
	s.Router.GET("/events/updates", gin.WrapH(s.Hub.Handler()))
}
