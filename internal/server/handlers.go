package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guarzo/mltrends/internal/analysis"
	"github.com/guarzo/mltrends/internal/enrich"
	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/report"
	"github.com/guarzo/mltrends/internal/search"
	"github.com/guarzo/mltrends/internal/trends"
)

// siteParam validates the :site path parameter against the allow-list.
func siteParam(c *gin.Context) (model.Site, bool) {
	site, err := model.LookupSite(c.Param("site"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return model.Site{}, false
	}
	return site, true
}

func (s *Server) listSites(c *gin.Context) {
	out := make([]model.Site, 0, len(model.Sites()))
	for _, code := range model.Sites() {
		site, _ := model.LookupSite(code)
		out = append(out, site)
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (s *Server) tokenStatus(c *gin.Context) {
	if s.deps.Tokens == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false, "valid": false})
		return
	}
	c.JSON(http.StatusOK, s.deps.Tokens.Status())
}

func (s *Server) getTrends(c *gin.Context) {
	site, ok := siteParam(c)
	if !ok {
		return
	}
	items, err := s.deps.Trends.Fetch(c.Request.Context(), site.Code)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, trends.ErrNoTrends) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": site.Code, "items": items})
}

func (s *Server) getEnriched(c *gin.Context) {
	site, ok := siteParam(c)
	if !ok {
		return
	}
	if s.deps.Enriched == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrichment cache disabled"})
		return
	}
	items, err := s.deps.Enriched.Get(c.Request.Context(), site.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cached data for " + site.Code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": site.Code, "items": items})
}

type putEnrichedReq struct {
	Items []model.EnrichedTrendItem `json:"items"`
}

func (s *Server) putEnriched(c *gin.Context) {
	site, ok := siteParam(c)
	if !ok {
		return
	}
	if s.deps.Enriched == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrichment cache disabled"})
		return
	}
	var req putEnrichedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := s.deps.Enriched.Put(c.Request.Context(), site.Code, req.Items); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) searchSite(c *gin.Context) {
	site, ok := siteParam(c)
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(search.DefaultLimit)))
	if err != nil || limit <= 0 || limit > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
		return
	}

	resp, err := s.deps.Searcher.Search(c.Request.Context(), site.Code, q, limit)
	if err != nil {
		var se *search.StatusError
		status := http.StatusBadGateway
		if errors.As(err, &se) && se.StatusCode < 500 {
			status = se.StatusCode
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) enrichOne(c *gin.Context) {
	site, ok := siteParam(c)
	if !ok {
		return
	}
	var trend model.TrendItem
	if err := c.ShouldBindJSON(&trend); err != nil || strings.TrimSpace(trend.Keyword) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}

	e := s.enrichers.getOrCreate(enricherKey(site.Code, trend.Keyword), func() *enrich.Enricher {
		return enrich.NewEnricher(site.Code, trend, s.deps.Searcher, s.logger)
	})

	state := e.Enrich(c.Request.Context())
	if state.Data != nil {
		// Keys are normalized, so the shared result may carry another
		// caller's spelling of the trend.
		data := *state.Data
		data.TrendItem = trend
		state.Data = &data
	}
	status := http.StatusOK
	switch state.Status {
	case enrich.StatusError:
		status = http.StatusBadGateway
	case enrich.StatusLoading:
		status = http.StatusAccepted
	}
	c.JSON(status, state)
}

type createSessionReq struct {
	Site    string `json:"site"`
	Limit   int    `json:"limit"`
	Weights string `json:"weights"`
}

// createSession starts a batch session. With ?wait=true the first page is
// enriched before responding; otherwise it loads in the background.
func (s *Server) createSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	site, err := model.LookupSite(req.Site)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	weights, err := analysis.WeightsByName(req.Weights)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := s.deps.Batch
	opts.Site = site.Code
	opts.Weights = weights
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}

	sess := enrich.NewSession(opts, s.deps.Trends, s.deps.Searcher, s.deps.Enriched, s.logger)
	id, err := s.sessions.add(sess)
	if err != nil {
		sess.Close()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}

	s.run(c, id, sess.Load)
	c.JSON(http.StatusCreated, gin.H{"id": id, "session": sess.Snapshot()})
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) loadMore(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.run(c, c.Param("id"), sess.LoadMore)
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) refreshSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.run(c, c.Param("id"), sess.Refresh)
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.sessions.remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	why, _ := strconv.ParseBool(c.DefaultQuery("why", "false"))
	rows := analysis.ReportOpportunities(analysis.RankByOpportunity(snap.Items), sess.Options().Weights, why)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=trends-"+snap.Site+".csv")
	if err := report.WriteCSV(c.Writer, rows); err != nil {
		s.logger.Error("csv export failed", "session", c.Param("id"), "error", err)
	}
}

func (s *Server) session(c *gin.Context) (*enrich.Session, bool) {
	sess, ok := s.sessions.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return sess, ok
}

// run executes a session operation inline when ?wait=true, otherwise in the
// background. Failures are reported through the session snapshot.
func (s *Server) run(c *gin.Context, id string, op func(context.Context) error) {
	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if wait {
		if err := op(c.Request.Context()); err != nil {
			s.logger.Warn("session operation failed", "session", id, "error", err)
		}
		return
	}
	go func() {
		if err := op(context.Background()); err != nil && !errors.Is(err, enrich.ErrSessionClosed) && !errors.Is(err, enrich.ErrSuperseded) {
			s.logger.Warn("session operation failed", "session", id, "error", err)
		}
	}()
}
