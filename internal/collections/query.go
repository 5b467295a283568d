package collections

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/store"
)

// QueryFunc runs q against client and decodes every record payload into T.
func QueryFunc[T any](client store.Client, q store.Query) live.QueryFunc[T] {
	return func(ctx context.Context) ([]T, error) {
		records, err := client.Query(ctx, q)
		if err != nil {
			return nil, err
		}

		out := make([]T, 0, len(records))

		for _, rec := range records {
			var v T
			if err := json.Unmarshal(rec.Payload, &v); err != nil {
				return nil, &store.QueryError{Topic: q.Topic, Err: fmt.Errorf("decode record %s: %w", rec.ID, err)}
			}

			out = append(out, v)
		}

		return out, nil
	}
}

func Alerts(ctx context.Context, reg live.Registrar, client store.Client, opts live.Options[objects.EmergencyAlert]) (*live.Cache[objects.EmergencyAlert], error) {
	return live.New(ctx, reg, TopicEmergencyAlerts, QueryFunc[objects.EmergencyAlert](client, AlertsQuery), opts)
}

func EvacuationRoutes(ctx context.Context, reg live.Registrar, client store.Client, opts live.Options[objects.EvacuationRoute]) (*live.Cache[objects.EvacuationRoute], error) {
	return live.New(ctx, reg, TopicEvacuationRoutes, QueryFunc[objects.EvacuationRoute](client, RoutesQuery), opts)
}

func IncidentReports(ctx context.Context, reg live.Registrar, client store.Client, opts live.Options[objects.IncidentReport]) (*live.Cache[objects.IncidentReport], error) {
	return live.New(ctx, reg, TopicIncidentReports, QueryFunc[objects.IncidentReport](client, ReportsQuery), opts)
}

func Resources(ctx context.Context, reg live.Registrar, client store.Client, opts live.Options[objects.EmergencyResource]) (*live.Cache[objects.EmergencyResource], error) {
	return live.New(ctx, reg, TopicEmergencyResources, QueryFunc[objects.EmergencyResource](client, ResourcesQuery), opts)
}
