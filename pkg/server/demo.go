package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/demo"
	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/sites"
)

type demoStartRequest struct {
	TabURL     string `json:"tabUrl"`
	DemoCDPURL string `json:"demoCdpUrl"`
	// TabID, when a capture session is running for it, routes the attached
	// tab's DOM events into that session.
	TabID string `json:"tabId"`
}

// handleDemoStart handles POST /demo/start
func (s *Server) handleDemoStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req demoStartRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, err.Error(), err, nil)
		return
	}
	if !sites.IsValidURL(req.TabURL) {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "tabUrl must be a valid http(s) URL.", nil, nil)
		return
	}
	cdpURL := strings.TrimSpace(req.DemoCDPURL)
	if cdpURL == "" {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "demoCdpUrl is required for demo mode.", nil, nil)
		return
	}

	p, err := s.browser.Attach(ctx, cdpURL, req.TabURL)
	if err != nil {
		s.writeErrorResponse(ctx, w, http.StatusInternalServerError, errors.Cause(err).Error(), err, nil)
		return
	}
	if req.TabID != "" {
		s.bridgeCapture(r, req.TabID)
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "attachedUrl": p.URL()})
}

// bridgeCapture feeds the attached browser's DOM events into the tab's
// capture session, if one is running.
func (s *Server) bridgeCapture(r *http.Request, tabID string) {
	if _, ok := s.captures.Get(tabID); !ok {
		return
	}
	if err := s.browser.CaptureInto(r.Context(), s.captures, tabID); err != nil {
		logger.G(r.Context()).WithError(err).WithField("tab_id", tabID).Warn("browser capture bridge unavailable")
	}
}

type voiceSegmentRequest struct {
	Transcript string `json:"transcript"`
	TabURL     string `json:"tabUrl"`
	DemoCDPURL string `json:"demoCdpUrl"`
	TabID      string `json:"tabId"`
}

type voiceSegmentResponse struct {
	OK             bool     `json:"ok"`
	Skipped        bool     `json:"skipped,omitempty"`
	SkillName      string   `json:"skillName,omitempty"`
	Filename       string   `json:"filename,omitempty"`
	Confidence     string   `json:"confidence,omitempty"`
	Observed       int      `json:"observedElements"`
	TimelineEvents int      `json:"timelineEvents"`
	DebugLogs      []string `json:"debugLogs"`
}

// handleVoiceSegment handles POST /demo/voice-segment
func (s *Server) handleVoiceSegment(w http.ResponseWriter, r *http.Request) {
	ctx, collector := logger.WithCollector(r.Context())

	var req voiceSegmentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, err.Error(), err, collector.Lines())
		return
	}

	out, err := s.demo.Segment(ctx, demo.SegmentRequest{
		Transcript: req.Transcript,
		TabURL:     req.TabURL,
		CDPURL:     req.DemoCDPURL,
		TabID:      req.TabID,
	})
	switch {
	case errors.Is(err, demo.ErrMissingCDP):
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "demoCdpUrl is required for demo mode.", nil, collector.Lines())
		return
	case errors.Is(err, demo.ErrAuthPage):
		s.writeErrorResponse(ctx, w, http.StatusConflict, "The browser is on Google sign-in. Sign in in that window, then retry the demo capture.", nil, collector.Lines())
		return
	case err != nil:
		logger.Debugf(ctx, "[demo] failed: %v", err)
		s.writeErrorResponse(ctx, w, http.StatusInternalServerError, err.Error(), err, collector.Lines())
		return
	}

	if out.Skipped {
		s.writeJSONResponse(w, http.StatusOK, voiceSegmentResponse{OK: true, Skipped: true, DebugLogs: collector.Lines()})
		return
	}
	s.index.Invalidate()
	s.writeJSONResponse(w, http.StatusOK, voiceSegmentResponse{
		OK:             true,
		SkillName:      out.Skill.SkillName,
		Filename:       out.Skill.Filename,
		Confidence:     out.Skill.Confidence,
		Observed:       out.Observed,
		TimelineEvents: out.TimelineEvents,
		DebugLogs:      collector.Lines(),
	})
}

type tabRequest struct {
	TabID  string `json:"tabId"`
	TabURL string `json:"tabUrl"`
}

func (s *Server) decodeTab(w http.ResponseWriter, r *http.Request) (tabRequest, bool) {
	var req tabRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, err.Error(), err, nil)
		return req, false
	}
	req.TabID = strings.TrimSpace(req.TabID)
	if req.TabID == "" {
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "tabId is required.", nil, nil)
		return req, false
	}
	return req, true
}

// handleDOMStart handles POST /demo/dom/start
func (s *Server) handleDOMStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTab(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.Start(r.Context(), req.TabID, time.Now())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domcapture.ErrSessionExists) {
			status = http.StatusConflict
		}
		s.writeErrorResponse(r.Context(), w, status, err.Error(), err, nil)
		return
	}
	if s.browser.Status().Connected {
		s.bridgeCapture(r, req.TabID)
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"ok":        true,
		"tabId":     sess.TabID(),
		"sessionId": sess.ID(),
		"stream":    streamPath + "?tab_id=" + req.TabID,
	})
}

// handleDOMStop handles POST /demo/dom/stop
func (s *Server) handleDOMStop(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTab(w, r)
	if !ok {
		return
	}
	tl, err := s.captures.Stop(r.Context(), req.TabID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domcapture.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		s.writeErrorResponse(r.Context(), w, status, err.Error(), err, nil)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"ok":       true,
		"tabId":    req.TabID,
		"events":   len(tl.Events),
		"dropped":  tl.TotalDropped(),
		"timeline": tl.Render(domcapture.DefaultRenderLimit),
	})
}

// handleTabClosed handles POST /demo/tab-closed
func (s *Server) handleTabClosed(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTab(w, r)
	if !ok {
		return
	}
	stopped := s.captures.TabClosed(r.Context(), req.TabID)
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "tabId": req.TabID, "stopped": stopped})
}

type streamReply struct {
	Error string `json:"error"`
}

// handleDOMStream handles GET /demo/dom/stream?tab_id=. Each text frame is a
// domcapture.Message applied to the tab's session; the stream closes when
// the session ends.
func (s *Server) handleDOMStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tabID := strings.TrimSpace(r.URL.Query().Get("tab_id"))
	if tabID == "" {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "tab_id is required.", nil, nil)
		return
	}
	if _, ok := s.captures.Get(tabID); !ok {
		s.writeErrorResponse(ctx, w, http.StatusNotFound, "no capture session for tab "+tabID, nil, nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("tab_id", tabID).Warn("dom stream upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	log := logger.G(ctx).WithField("tab_id", tabID)
	log.Info("dom stream connected")
	for {
		var msg domcapture.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("dom stream closed unexpectedly")
			}
			return
		}

		sess, ok := s.captures.Get(tabID)
		if !ok {
			closeStream(conn, "capture session ended")
			return
		}
		if err := sess.Apply(msg); err != nil {
			if errors.Is(err, domcapture.ErrSessionStopped) {
				closeStream(conn, "capture session ended")
				return
			}
			log.WithError(err).Debug("rejected dom stream message")
			if err := conn.WriteJSON(streamReply{Error: err.Error()}); err != nil {
				return
			}
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
