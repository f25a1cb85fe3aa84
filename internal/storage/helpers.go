package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roman-kulish/althold/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

func toConfigData(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	}

	p, err := json.Marshal(config)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
	}

	return sql.NullString{String: string(p), Valid: true}, nil
}

func toTickData(missionID int64, r telemetry.Record) *tickData {
	return &tickData{
		MissionID: missionID,
		Timestamp: r.Timestamp.UTC(),
		Phase:     r.Phase,
		State: sql.NullString{
			String: r.State,
			Valid:  r.State != "",
		},
		Altitude: sql.NullFloat64{
			Float64: toSQLNullType[float64](r.Altitude),
			Valid:   r.Altitude != nil,
		},
		Strength: sql.NullInt64{
			Int64: toSQLNullType[int64](r.Strength),
			Valid: r.Strength != nil,
		},
		Temperature: sql.NullFloat64{
			Float64: toSQLNullType[float64](r.Temperature),
			Valid:   r.Temperature != nil,
		},
		Throttle: int64(r.Throttle),
		Verdict:  r.Verdict,
	}
}

func fromTickData(d *tickData) Tick {
	t := Tick{
		ID:        d.ID,
		MissionID: d.MissionID,
		Record: telemetry.Record{
			Timestamp: d.Timestamp,
			Phase:     d.Phase,
			State:     d.State.String,
			Throttle:  int(d.Throttle),
			Verdict:   d.Verdict,
		},
	}

	t.Altitude = fromSQLNull(d.Altitude.Float64, d.Altitude.Valid)
	t.Strength = fromSQLNull(d.Strength.Int64, d.Strength.Valid)
	t.Temperature = fromSQLNull(d.Temperature.Float64, d.Temperature.Valid)

	return t
}

func fromMissionData(d *missionData) *Mission {
	m := Mission{
		ID:              d.ID,
		StartTime:       d.StartTime,
		TargetAltitude:  d.TargetAltitude,
		EndTime:         fromSQLNull(d.EndTime.Time, d.EndTime.Valid),
		Outcome:         fromSQLNull(d.Outcome.String, d.Outcome.Valid),
		FinalState:      fromSQLNull(d.FinalState.String, d.FinalState.Valid),
		Verdict:         fromSQLNull(d.Verdict.String, d.Verdict.Valid),
		TakeoffThrottle: fromSQLNull(d.TakeoffThrottle.Int64, d.TakeoffThrottle.Valid),
		HoldTicks:       fromSQLNull(d.HoldTicks.Int64, d.HoldTicks.Valid),
		Reason:          fromSQLNull(d.Reason.String, d.Reason.Valid),
		Config:          fromSQLNull(d.Config.String, d.Config.Valid),
	}

	return &m
}

func toSQLNullType[T float64 | int64, Y float64 | int | int64](f *Y) T {
	if f == nil {
		return 0
	}
	return T(*f)
}

func fromSQLNull[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}
