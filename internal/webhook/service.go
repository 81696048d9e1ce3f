package webhook

import (
	"context"

	"mapdna/internal/events"
	"mapdna/platform/apperr"
	"mapdna/platform/logger"
)

// Service turns content store notifications into element events.
type Service struct {
	bus events.Bus
	log *logger.Logger
}

func NewService(bus events.Bus, log *logger.Logger) *Service {
	return &Service{bus: bus, log: log}
}

// ElementsChanged publishes an ElementsChanged event and waits for the
// subscribers, so a successful reply means caches are already clean.
func (s *Service) ElementsChanged(ctx context.Context, req ElementsChangedRequest) error {
	ids := dedupe(req.IDs)
	change := events.ElementChange(req.Change)
	if change == "" {
		change = events.ElementSaved
	}

	err := s.bus.PublishSync(ctx, events.ElementsChanged{
		BaseEvent: events.NewBaseEvent(),
		IDs:       ids,
		Change:    change,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to process element change", err)
	}
	s.log.Info("elements changed", "ids", ids, "change", change)
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
