package controllers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

type verifyRequest struct {
	Handle1    string `json:"handle1"`
	Handle2    string `json:"handle2"`
	QuestionID string `json:"questionId"`
}

// VerifySubmissions checks both handles against a problem before a contest
// proceeds. Both lookups run in parallel; a verifier failure is surfaced, not
// treated as "clean".
func (server *Server) VerifySubmissions(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		req.Handle1 == "" || req.Handle2 == "" || req.QuestionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required parameters"})
		return
	}

	ctx := c.Request.Context()

	var (
		wg               sync.WaitGroup
		solved1, solved2 bool
		err1, err2       error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		solved1, err1 = server.Verifier.HasSolved(ctx, req.Handle1, req.QuestionID)
	}()
	go func() {
		defer wg.Done()
		solved2, err2 = server.Verifier.HasSolved(ctx, req.Handle2, req.QuestionID)
	}()
	wg.Wait()

	if err1 != nil || err2 != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	if solved1 || solved2 {
		c.JSON(http.StatusForbidden, gin.H{
			"message": "One or both users have already solved this problem",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Proceed with the contest"})
}
