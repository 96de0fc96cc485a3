package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rapidresponse/internal/intake"
	"rapidresponse/internal/models"

	"github.com/gin-gonic/gin"
)

// reportRequest is the JSON form of a report. Audio is base64 encoded.
type reportRequest struct {
	Text     string           `json:"text"`
	Audio    []byte           `json:"audio,omitempty"`
	Location *models.Location `json:"location,omitempty"`
}

type updateEmergencyRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (s *Server) submitReport(c *gin.Context) {
	var (
		report intake.Report
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		report, err = s.multipartReport(c)
	} else {
		report, err = s.jsonReport(c)
	}
	if err != nil {
		invalidInput(c, err.Error())
		return
	}

	e, err := s.deps.Intake.ProcessReport(c.Request.Context(), report)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) jsonReport(c *gin.Context) (intake.Report, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxAudioBytes*2)
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return intake.Report{}, fmt.Errorf("invalid request body: %w", err)
	}
	if int64(len(req.Audio)) > s.maxAudioBytes {
		return intake.Report{}, fmt.Errorf("audio exceeds %d bytes", s.maxAudioBytes)
	}
	return intake.Report{Text: req.Text, Audio: req.Audio, Location: req.Location}, nil
}

func (s *Server) multipartReport(c *gin.Context) (intake.Report, error) {
	report := intake.Report{Text: c.PostForm("text")}

	if fh, err := c.FormFile("audio"); err == nil {
		if fh.Size > s.maxAudioBytes {
			return report, fmt.Errorf("audio exceeds %d bytes", s.maxAudioBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return report, fmt.Errorf("read audio: %w", err)
		}
		defer f.Close()
		report.Audio, err = io.ReadAll(io.LimitReader(f, s.maxAudioBytes))
		if err != nil {
			return report, fmt.Errorf("read audio: %w", err)
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		return report, fmt.Errorf("read audio: %w", err)
	}

	lat, lon := c.PostForm("lat"), c.PostForm("lon")
	if lat == "" && lon == "" {
		return report, nil
	}
	if lat == "" || lon == "" {
		return report, fmt.Errorf("lat and lon must be given together")
	}
	latF, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return report, fmt.Errorf("invalid lat %q", lat)
	}
	lonF, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return report, fmt.Errorf("invalid lon %q", lon)
	}
	report.Location = &models.Location{Lat: latF, Lon: lonF}
	return report, nil
}

func (s *Server) getEmergency(c *gin.Context) {
	e, err := s.deps.Emergencies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// updateEmergency changes the status, the notes, or both. A status change carries the
// notes into its audit row.
func (s *Server) updateEmergency(c *gin.Context) {
	var req updateEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	var (
		e   *models.Emergency
		err error
	)
	switch {
	case req.Status != nil:
		notes := ""
		if req.Notes != nil {
			notes = *req.Notes
		}
		e, err = s.deps.Emergencies.UpdateStatus(ctx, id, *req.Status, notes)
	case req.Notes != nil:
		e, err = s.deps.Emergencies.UpdateNotes(ctx, id, *req.Notes)
	default:
		invalidInput(c, "status or notes is required")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) statusUpdates(c *gin.Context) {
	updates, err := s.deps.Emergencies.StatusHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emergency_id": c.Param("id"), "updates": updates})
}

func (s *Server) emergencyHistory(c *gin.Context) {
	f, err := parseHistoryFilter(c)
	if err != nil {
		invalidInput(c, err.Error())
		return
	}
	list, err := s.deps.Emergencies.History(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emergencies": list, "count": len(list)})
}

func parseHistoryFilter(c *gin.Context) (models.HistoryFilter, error) {
	var f models.HistoryFilter
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC3339 timestamp", p.key)
		}
		*p.dst = &t
	}

	f.Type = strings.TrimSpace(c.Query("type"))
	if raw := c.Query("status"); raw != "" {
		st, ok := models.ParseEmergencyStatus(raw)
		if !ok {
			return f, fmt.Errorf("unknown status %q", raw)
		}
		f.Status = st
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) emergencyStats(c *gin.Context) {
	stats, err := s.deps.Emergencies.Stats(c.Request.Context(), c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
