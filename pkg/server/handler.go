package server

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

// NewRouter builds the gin engine with CORS, request logging and all routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.Service.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
	}))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.POST("/research", h.research)
}

// researchBody is the wire form of POST /research. The presence of
// followUpAnswers selects the answered variant.
type researchBody struct {
	InitialQuery      string    `json:"initialQuery"`
	Breadth           int       `json:"breadth"`
	Depth             int       `json:"depth"`
	FollowUpQuestions []string  `json:"followUpQuestions"`
	FollowUpAnswers   *[]string `json:"followUpAnswers"`
}

func (b researchBody) request() ResearchRequest {
	query := strings.TrimSpace(b.InitialQuery)
	if b.FollowUpAnswers == nil {
		return InitialRequest{Query: query, Breadth: b.Breadth, Depth: b.Depth}
	}
	return AnsweredRequest{
		Query:     query,
		Breadth:   b.Breadth,
		Depth:     b.Depth,
		Questions: b.FollowUpQuestions,
		Answers:   *b.FollowUpAnswers,
	}
}

func (h *Handler) research(c *gin.Context) {
	var body researchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body."})
		return
	}
	if strings.TrimSpace(body.InitialQuery) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Initial query is required."})
		return
	}

	resp, err := h.Service.Handle(c.Request.Context(), body.request())
	if err != nil {
		loggerFrom(c, h.Service.Logger).Error("Error in /research endpoint", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
