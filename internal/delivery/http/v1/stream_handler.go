package v1

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/notifier"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StreamConfig struct {
	Heartbeat     time.Duration
	RetryAttempts int
	RetryBase     time.Duration
}

type StreamHandler struct {
	hub      *notifier.Hub
	resumeUC domain.ResumeUsecase
	cfg      StreamConfig
	log      *zap.Logger
}

func NewStreamHandler(jobs *gin.RouterGroup, hub *notifier.Hub, resumeUC domain.ResumeUsecase, cfg StreamConfig, log *zap.Logger) {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	handler := &StreamHandler{hub: hub, resumeUC: resumeUC, cfg: cfg, log: log}

	jobs.GET("/events", handler.JobStream)
	jobs.GET("/resumes/:id/events", handler.ResumeStream)
}

// snapshotFunc returns the channel sequence a snapshot reflects plus its body.
type snapshotFunc func(ctx context.Context) (uint64, any, error)

// JobStream godoc
// @Summary      Server-sent events for one job
// @Description  Status, ranking and Verix changes of every resume in the job. Reconnects with Last-Event-ID (or snapshot=1) receive a snapshot first; a resync frame replaces events a slow client missed.
// @Tags         streams
// @Produce      text/event-stream
// @Param        jobId     path   int     true   "Job ID"
// @Param        snapshot  query  bool    false  "Send a snapshot before live events"
// @Router       /jobs/{jobId}/events [get]
// @Security     BearerAuth
func (h *StreamHandler) JobStream(c *gin.Context) {
	id := jobID(c)
	h.serve(c, domain.JobChannel(id), func(ctx context.Context) (uint64, any, error) {
		snap, err := h.resumeUC.JobSnapshot(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		return snap.Seq, snap, nil
	})
}

func (h *StreamHandler) ResumeStream(c *gin.Context) {
	rid, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	jid := jobID(c)
	// scope check before any stream bytes are written
	if _, err := h.resumeUC.GetResume(c.Request.Context(), jid, rid); err != nil {
		c.Error(err)
		return
	}
	h.serve(c, domain.ResumeChannel(rid), func(ctx context.Context) (uint64, any, error) {
		snap, err := h.resumeUC.ResumeSnapshot(ctx, jid, rid)
		if err != nil {
			return 0, nil, err
		}
		return snap.Seq, snap, nil
	})
}

func (h *StreamHandler) serve(c *gin.Context, channel string, snapshot snapshotFunc) {
	ctx := c.Request.Context()

	// Subscribe first so nothing published while the snapshot loads is lost.
	sub := h.hub.Subscribe(channel)
	defer sub.Cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	var floor uint64
	if wantsSnapshot(c) {
		seq, ok := h.sendSnapshot(c, domain.EventSnapshot, snapshot)
		if !ok {
			return
		}
		floor = seq
	} else {
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := sse.Encode(c.Writer, sse.Event{
				Event: string(domain.EventHeartbeat),
				Data:  gin.H{"at": time.Now().UTC()},
			}); err != nil {
				return
			}
			c.Writer.Flush()
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if ev.Seq > floor {
				if err := sse.Encode(c.Writer, sse.Event{
					Id:    strconv.FormatUint(ev.Seq, 10),
					Event: string(ev.Type),
					Data:  ev,
				}); err != nil {
					return
				}
				c.Writer.Flush()
			}
		}

		if sub.TakeLagged() {
			seq, ok := h.sendSnapshot(c, domain.EventResync, snapshot)
			if !ok {
				return
			}
			floor = seq
		}
	}
}

// sendSnapshot writes one snapshot frame and returns its sequence. It reports
// false when the stream should end.
func (h *StreamHandler) sendSnapshot(c *gin.Context, frame domain.EventType, snapshot snapshotFunc) (uint64, bool) {
	type result struct {
		seq  uint64
		body any
	}
	res, err := notifier.FetchWithBackoff(c.Request.Context(), h.cfg.RetryAttempts, h.cfg.RetryBase,
		func(ctx context.Context) (result, error) {
			seq, body, err := snapshot(ctx)
			return result{seq: seq, body: body}, err
		})
	if err != nil {
		h.log.Warn("stream snapshot failed", zap.String("frame", string(frame)), zap.Error(err))
		_ = sse.Encode(c.Writer, sse.Event{
			Event: "error",
			Data:  gin.H{"message": "snapshot unavailable, reconnect"},
		})
		c.Writer.Flush()
		return 0, false
	}
	if err := sse.Encode(c.Writer, sse.Event{
		Id:    strconv.FormatUint(res.seq, 10),
		Event: string(frame),
		Data:  res.body,
	}); err != nil {
		return 0, false
	}
	c.Writer.Flush()
	return res.seq, true
}

func wantsSnapshot(c *gin.Context) bool {
	if c.GetHeader("Last-Event-ID") != "" || c.Query("last_event_id") != "" {
		return true
	}
	v, _ := strconv.ParseBool(c.Query("snapshot"))
	return v
}
