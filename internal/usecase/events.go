package usecase

import (
	"context"

	"go-screening-backend/internal/domain"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event, ...string) {}

func publisherOrNop(p domain.Publisher) domain.Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// publishResume sends ev to both the job channel and the resume channel.
func publishResume(ctx context.Context, pub domain.Publisher, r *domain.Resume, ev domain.Event) {
	pub.Publish(ctx, ev, domain.JobChannel(r.JobID), domain.ResumeChannel(r.ID))
}

func publishVerix(ctx context.Context, pub domain.Publisher, c *domain.VerixConversation, evType domain.VerixEventType) {
	pub.Publish(ctx, domain.NewVerixEvent(c, evType), domain.JobChannel(c.JobID), domain.ResumeChannel(c.ResumeID))
}

// SequenceReader reports the last sequence number assigned on a channel.
type SequenceReader interface {
	Current(ctx context.Context, channel string) (uint64, error)
}
