package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPOIService_TogglePin(t *testing.T) {
	env := newEnv(t)
	svc := NewPOIService(env.svc)
	ctx := context.Background()
	poi := env.createPOI(t, "Alice")
	require.False(t, poi.Values["is_pinned"].Bool())

	item, msg, err := svc.TogglePin(ctx, 2, poi.ID)
	require.NoError(t, err)
	assert.Equal(t, "POI Succcessfully Pinned", msg)
	assert.True(t, item.Values["is_pinned"].Bool())
	assert.Equal(t, "pin:1", env.lastAudit(t)["action"].Text())

	_, vals := env.stored(t, fieldmap.POI, poi.ID)
	assert.True(t, vals["is_pinned"].Bool())

	item, msg, err = svc.TogglePin(ctx, 2, poi.ID)
	require.NoError(t, err)
	assert.Equal(t, "POI Successfully Unpinned", msg)
	assert.False(t, item.Values["is_pinned"].Bool())
	assert.Equal(t, "unpin:1", env.lastAudit(t)["action"].Text())

	_, _, err = svc.TogglePin(ctx, 2, 42)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestParsePOIDraft(t *testing.T) {
	body := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"full_name": "John Doe",
		"dob": "1990-06-01",
		"id_documents": [{"type": "passport", "id_number": "A1"}, {"type": "nin", "id_number": "N2"}],
		"convictions": [{"offense_id": 3, "date_convicted": "2020-01-02"}],
		"veteran_status": {"is_veteran": false}
	}`), &body))

	draft, err := ParsePOIDraft(body)
	require.NoError(t, err)

	assert.Equal(t, "John Doe", draft.Values["full_name"].Text())
	require.Len(t, draft.Children, 4)
	assert.Equal(t, fieldmap.IDDocument, draft.Children[0].Entity)
	assert.Equal(t, "N2", draft.Children[1].Values["id_number"].Text())
	assert.Equal(t, fieldmap.Conviction, draft.Children[2].Entity)
	assert.Equal(t, int64(3), draft.Children[2].Refs[fieldmap.RefOffense])
	assert.Equal(t, fieldmap.VeteranStatus, draft.Children[3].Entity)
}

func TestParsePOIDraft_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{name: "missing name", body: `{}`, msg: "full_name: value is required"},
		{name: "bad child", body: `{"full_name":"x","gsm_numbers":[{"number":"1"}]}`, msg: "gsm_numbers[0].service_provider: value is required"},
		{name: "not a list", body: `{"full_name":"x","gsm_numbers":{}}`, msg: "gsm_numbers: expected a list of objects"},
		{name: "missing offense", body: `{"full_name":"x","convictions":[{"date_convicted":"2020-01-02"}]}`, msg: "convictions[0].offense_id: value is required"},
		{name: "system field", body: `{"full_name":"x","is_pinned":true}`, msg: "is_pinned: unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]json.RawMessage{}
			require.NoError(t, json.Unmarshal([]byte(tt.body), &body))

			_, err := ParsePOIDraft(body)
			require.ErrorIs(t, err, common.ErrBadRequest)
			assert.Equal(t, tt.msg, common.Message(err))
		})
	}
}

func TestPOIService_CompositeCreateAndDossier(t *testing.T) {
	env := newEnv(t)
	svc := NewPOIService(env.svc)
	ctx := context.Background()

	off, err := env.svc.Create(ctx, 1, offenseScope(), nil, fieldmap.Values{"name": text("Theft")})
	require.NoError(t, err)

	dossier, err := svc.Create(ctx, 1, &POIDraft{
		Values: fieldmap.Values{"full_name": text("John Doe")},
		Children: []ChildDraft{
			{Entity: fieldmap.IDDocument, Values: fieldmap.Values{"type": text("passport"), "id_number": text("A1")}},
			{Entity: fieldmap.GSMNumber, Values: fieldmap.Values{"service_provider": text("MTN"), "number": text("0803")}},
			{Entity: fieldmap.Conviction, Refs: map[string]int64{fieldmap.RefOffense: off.ID},
				Values: fieldmap.Values{"date_convicted": fieldmap.DateValue(env.now)}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "John Doe", dossier.POI.Values["full_name"].Text())
	assert.Len(t, dossier.Children["id_documents"], 1)
	assert.Len(t, dossier.Children["convictions"], 1)

	// one audit entry per created record, plus the offense
	assert.Len(t, env.auditEntries(t), 5)

	require.NoError(t, env.svc.Delete(ctx, 1, Scope{Entity: fieldmap.GSMNumber, ParentID: dossier.POI.ID},
		dossier.Children["gsm_numbers"][0].ID, 0))

	full, err := svc.Dossier(ctx, dossier.POI.ID)
	require.NoError(t, err)
	assert.Len(t, full.Children["id_documents"], 1)
	assert.Empty(t, full.Children["gsm_numbers"])
	assert.Empty(t, full.Children["known_associates"])
	assert.Contains(t, full.Children, "veteran_status")
}

func TestPOIService_CompositeCreateFailsAsAWhole(t *testing.T) {
	env := newEnv(t)
	svc := NewPOIService(env.svc)

	_, err := svc.Create(context.Background(), 1, &POIDraft{
		Values: fieldmap.Values{"full_name": text("John Doe")},
		Children: []ChildDraft{
			{Entity: fieldmap.Conviction, Refs: map[string]int64{fieldmap.RefOffense: 77},
				Values: fieldmap.Values{"date_convicted": fieldmap.DateValue(env.now)}},
		},
	})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPOIService_List(t *testing.T) {
	env := newEnv(t)
	svc := NewPOIService(env.svc)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C", "D"} {
		env.createPOI(t, name)
	}
	_, _, err := svc.TogglePin(ctx, 1, 2)
	require.NoError(t, err)
	_, _, err = svc.TogglePin(ctx, 1, 4)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, 4, 0))

	all, err := svc.List(ctx, POIFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, []string{"C", "B", "A"}, names(all.Items))

	pinned, err := svc.List(ctx, POIFilter{Pinned: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(pinned.Items))

	recent, err := svc.List(ctx, POIFilter{Recent: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, names(recent.Items))

	paged, err := svc.List(ctx, POIFilter{Page: Page{Number: 2, Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(paged.Items))
}

func names(items []*Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Values["full_name"].Text())
	}
	return out
}

func TestPOIService_Statistics(t *testing.T) {
	env := newEnv(t)
	svc := NewPOIService(env.svc)
	ctx := context.Background()
	now := env.now // 2024-03-15

	theft, err := env.svc.Create(ctx, 1, offenseScope(), nil, fieldmap.Values{"name": text("Theft")})
	require.NoError(t, err)
	robbery, err := env.svc.Create(ctx, 1, offenseScope(), nil, fieldmap.Values{"name": text("Robbery")})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, 1, offenseScope(), nil, fieldmap.Values{"name": text("Arson")})
	require.NoError(t, err)

	create := func(at time.Time, dob *time.Time) int64 {
		env.setNow(at)
		vals := fieldmap.Values{"full_name": text("p")}
		if dob != nil {
			vals["dob"] = fieldmap.DateTimeValue(*dob)
		}
		it, err := env.svc.Create(ctx, 1, poiScope(), nil, vals)
		require.NoError(t, err)
		return it.ID
	}
	date := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	convict := func(poi, offense int64) {
		_, err := env.svc.Create(ctx, 1, Scope{Entity: fieldmap.Conviction, ParentID: poi},
			map[string]int64{fieldmap.RefOffense: offense}, fieldmap.Values{"date_convicted": fieldmap.DateValue(now)})
		require.NoError(t, err)
	}

	p1 := create(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), date(1990, 6, 1))
	p2 := create(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), date(2000, 3, 16))
	create(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil)
	create(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), date(2010, 1, 1))
	p5 := create(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), date(1950, 1, 1))

	convict(p1, theft.ID)
	convict(p1, robbery.ID)
	convict(p2, theft.ID)
	convict(p5, robbery.ID)

	require.NoError(t, env.svc.Delete(ctx, 1, poiScope(), p5, 0))
	env.setNow(now)

	st, err := svc.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, st.TotalPOIs)
	assert.Equal(t, 2, st.POIsThisMonth)
	assert.Equal(t, 1, st.POIsLastMonth)
	assert.Equal(t, 3, st.TotalConvictions)
	assert.Equal(t, []Count{{"Theft", 2}, {"Robbery", 1}}, st.TopOffenses)
	assert.Equal(t, []Count{
		{"18-27", 1}, {"28-37", 1}, {"38-47", 0}, {"48-57", 0}, {"58+", 0}, {"Unknown", 2},
	}, st.AgeRanges)
}

func TestPOIService_StatisticsJanuaryRollover(t *testing.T) {
	env := newEnv(t)
	svc := NewPOIService(env.svc)

	env.setNow(time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC))
	env.createPOI(t, "december")
	env.setNow(time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC))
	env.createPOI(t, "november")
	env.setNow(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	st, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.POIsThisMonth)
	assert.Equal(t, 1, st.POIsLastMonth)
	assert.Empty(t, st.TopOffenses)
}

func TestAgeRange(t *testing.T) {
	cases := map[int]string{-1: "Unknown", 17: "Unknown", 18: "18-27", 27: "18-27", 28: "28-37", 47: "38-47", 57: "48-57", 58: "58+", 90: "58+"}
	for age, want := range cases {
		assert.Equal(t, want, ageRange(age), "age %d", age)
	}
}
