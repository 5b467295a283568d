package collections

import (
	"context"
	"encoding/json"

	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/store"
)

// CreateIncidentReport stores a new report as active and unverified, then refreshes
// owner. Validation failures are returned as a *store.WriteError wrapping an
// *objects.ValidationError.
func CreateIncidentReport(ctx context.Context, client store.Client, report objects.NewIncidentReport, owner live.Refresher) (objects.IncidentReport, error) {
	return live.PerformWrite(ctx, func(ctx context.Context) (objects.IncidentReport, error) {
		if err := report.Validate(); err != nil {
			return objects.IncidentReport{}, &store.WriteError{Topic: TopicIncidentReports, Op: store.OpInsert, Err: err}
		}

		payload, err := json.Marshal(report.Report())
		if err != nil {
			return objects.IncidentReport{}, &store.WriteError{Topic: TopicIncidentReports, Op: store.OpInsert, Err: err}
		}

		rec, err := client.Write(ctx, store.Mutation{
			Topic:   TopicIncidentReports,
			Op:      store.OpInsert,
			Payload: payload,
		})
		if err != nil {
			return objects.IncidentReport{}, err
		}

		var created objects.IncidentReport
		if err := json.Unmarshal(rec.Payload, &created); err != nil {
			return objects.IncidentReport{}, &store.WriteError{Topic: TopicIncidentReports, Op: store.OpInsert, Err: err}
		}

		return created, nil
	}, owner)
}
