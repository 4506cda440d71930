package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antoinenguyen27/siren/pkg/agent"
	"github.com/antoinenguyen27/siren/pkg/history"
	"github.com/antoinenguyen27/siren/pkg/llm"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/memory"
	"github.com/antoinenguyen27/siren/pkg/sites"
)

const (
	invalidTabMessage = "No valid active tab URL. Open a normal web page and try again."
	blockedSiteReply  = "That site is not on the allowed list, so I won't act on it."
)

type executeRequest struct {
	AudioBase64   string `json:"audioBase64"`
	AudioMimeType string `json:"audioMimeType"`
	// Transcript skips transcription when set.
	Transcript string `json:"transcript"`
	TabURL     string `json:"tabUrl"`
}

type executeResponse struct {
	Response   string   `json:"response"`
	Transcript string   `json:"transcript,omitempty"`
	DebugLogs  []string `json:"debugLogs"`
}

// handleWorkExecute handles POST /work/execute
func (s *Server) handleWorkExecute(w http.ResponseWriter, r *http.Request) {
	ctx, collector := logger.WithCollector(r.Context())

	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, err.Error(), err, collector.Lines())
		return
	}

	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		logger.Debugf(ctx, "[work] transcribing audio payload")
		transcript = llm.NotHeard
		if s.transcriber != nil {
			transcript = strings.TrimSpace(s.transcriber.Transcribe(ctx, req.AudioBase64, req.AudioMimeType))
		}
	}
	logger.Debugf(ctx, "[work] transcript=%q", transcript)

	reply := func(status int, response string) {
		s.writeJSONResponse(w, status, executeResponse{Response: response, Transcript: transcript, DebugLogs: collector.Lines()})
	}

	if transcript == "" || transcript == llm.NotHeard {
		reply(http.StatusOK, llm.NotHeard)
		return
	}
	if agent.ShouldRefuse(transcript) {
		logger.Debugf(ctx, "[work] refused for safety policy")
		reply(http.StatusOK, agent.RefusalMessage)
		return
	}
	if !sites.IsValidURL(req.TabURL) {
		logger.Debugf(ctx, "[work] rejected invalid tabUrl")
		reply(http.StatusBadRequest, invalidTabMessage)
		return
	}
	if s.sites != nil {
		allowed, err := s.sites.Allowed(req.TabURL)
		if err != nil || !allowed {
			logger.Debugf(ctx, "[work] site %q is not allowed", sites.Domain(req.TabURL))
			reply(http.StatusForbidden, blockedSiteReply)
			return
		}
	}

	s.workMu.Lock()
	defer s.workMu.Unlock()

	site := sites.Domain(req.TabURL)
	run := history.Run{Task: transcript, Site: site, StartedAt: time.Now()}
	report, err := s.execute(ctx, req.TabURL, site, transcript)
	run.FinishedAt = time.Now()
	run.PermanentFailures = report.PermanentFailures
	run.ObserveCalls = report.ObserveCalls

	if err != nil {
		logger.Debugf(ctx, "[work] failed: %v", err)
		run.Error = err.Error()
		s.recordRun(ctx, run)
		logger.G(ctx).WithError(err).WithField("site", site).Error("work task failed")
		s.writeJSONResponse(w, http.StatusInternalServerError, executeResponse{
			Response:  "I encountered an error while executing that task: " + err.Error(),
			DebugLogs: collector.Lines(),
		})
		return
	}

	logger.Debugf(ctx, "[work] final response=%q", report.Response)
	s.memory.Add(memory.Entry{Task: transcript, Result: report.Response, Timestamp: run.FinishedAt})
	run.Response = report.Response
	s.recordRun(ctx, run)
	reply(http.StatusOK, report.Response)
}

// execute navigates the work page to tabURL and runs the agent there.
func (s *Server) execute(ctx context.Context, tabURL, site, transcript string) (agent.Report, error) {
	p, err := s.browser.Start(ctx)
	if err != nil {
		return agent.Report{}, err
	}

	logger.Debugf(ctx, "[work] navigateTo(%q)", tabURL)
	if err := p.Navigate(ctx, tabURL); err != nil {
		return agent.Report{}, err
	}
	logger.Debugf(ctx, "[work] navigation complete")

	env := agent.NewEnv(p, site, s.skills, s.memory)
	logger.Debugf(ctx, "[work] invoking agent")
	report, err := s.agent.Run(ctx, env, transcript)
	if err != nil {
		return report, err
	}
	logger.Debugf(ctx, "[work] agent run complete after %d turns", report.Turns)
	return report, nil
}

func (s *Server) recordRun(ctx context.Context, run history.Run) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Record(context.WithoutCancel(ctx), run); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to record task run")
	}
}

// handleWorkStop handles POST /work/stop
func (s *Server) handleWorkStop(w http.ResponseWriter, r *http.Request) {
	s.memory.Clear()
	logger.G(r.Context()).Info("session memory cleared")
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
}

// handleWorkHistory handles GET /work/history
func (s *Server) handleWorkHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit := history.DefaultListLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeErrorResponse(ctx, w, http.StatusBadRequest, "limit must be a positive integer", nil, nil)
			return
		}
		limit = n
	}

	runs := []history.Run{}
	if s.history != nil {
		var err error
		if runs, err = s.history.List(ctx, query.Get("site"), limit); err != nil {
			s.writeErrorResponse(ctx, w, http.StatusInternalServerError, "failed to list task history", err, nil)
			return
		}
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}
