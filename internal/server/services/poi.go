package services

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/timex"
)

const (
	MsgPinned   = "POI Succcessfully Pinned"
	MsgUnpinned = "POI Successfully Unpinned"

	fieldPinned = "is_pinned"
	fieldDOB    = "dob"
	topOffenses = 5
)

// ChildDraft is a child record to create with a new POI.
type ChildDraft struct {
	Entity *fieldmap.Entity
	Refs   map[string]int64
	Values fieldmap.Values
}

// POIDraft is a composite create request.
type POIDraft struct {
	Values   fieldmap.Values
	Children []ChildDraft
}

// ParsePOIDraft splits a composite create body into POI fields and nested
// child records. Input errors are common.ErrBadRequest.
func ParsePOIDraft(body map[string]json.RawMessage) (*POIDraft, error) {
	base := make(map[string]json.RawMessage, len(body))
	for k, v := range body {
		base[k] = v
	}

	draft := &POIDraft{}
	for _, e := range fieldmap.POIChildren {
		raw, ok := base[e.Collection]
		if !ok {
			continue
		}
		delete(base, e.Collection)

		var objs []map[string]json.RawMessage
		if e.UniqueParent {
			var one map[string]json.RawMessage
			if err := json.Unmarshal(raw, &one); err != nil {
				return nil, common.NewError(common.ErrBadRequest, e.Collection+": expected an object")
			}
			if one != nil {
				objs = append(objs, one)
			}
		} else if err := json.Unmarshal(raw, &objs); err != nil {
			return nil, common.NewError(common.ErrBadRequest, e.Collection+": expected a list of objects")
		}

		for i, obj := range objs {
			vals, err := fieldmap.ParseInput(e, obj, fieldmap.ModeCreate)
			if err != nil {
				return nil, prefixed(fmt.Sprintf("%s[%d].", e.Collection, i), err)
			}
			refs, err := fieldmap.ParseRefs(obj, OtherRefs(e)...)
			if err != nil {
				return nil, prefixed(fmt.Sprintf("%s[%d].", e.Collection, i), err)
			}
			draft.Children = append(draft.Children, ChildDraft{Entity: e, Refs: refs, Values: vals})
		}
	}

	vals, err := fieldmap.ParseInput(fieldmap.POI, base, fieldmap.ModeCreate)
	if err != nil {
		return nil, err
	}
	draft.Values = vals
	return draft, nil
}

// OtherRefs lists the reference columns a caller must supply: all but the
// parent, which comes from the route.
func OtherRefs(e *fieldmap.Entity) []string {
	var out []string
	for _, r := range e.Refs {
		if r != e.Parent {
			out = append(out, r)
		}
	}
	return out
}

func prefixed(prefix string, err error) error {
	var ce *common.Error
	if errors.As(err, &ce) {
		return common.NewError(ce.Kind, prefix+ce.Message)
	}
	return err
}

// Dossier is a POI with all of its live child records.
type Dossier struct {
	POI      *Item              `json:"poi"`
	Children map[string][]*Item `json:"children"`
}

// POIFilter narrows a POI listing.
type POIFilter struct {
	Pinned bool
	// Recent, when positive, keeps the N newest POIs.
	Recent int
	Page   Page
}

// POIService implements the POI dossier operations on top of RecordService.
type POIService struct {
	records *RecordService
}

func NewPOIService(records *RecordService) *POIService {
	return &POIService{records: records}
}

func poiScope() Scope { return Scope{Entity: fieldmap.POI} }

// Create stores the POI and every child of the draft in one transaction.
func (s *POIService) Create(ctx context.Context, userID int64, draft *POIDraft) (*Dossier, error) {
	r := s.records
	return dbx.WithTxValue(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Dossier, error) {
		poi, err := r.create(ctx, tx, userID, poiScope(), nil, draft.Values)
		if err != nil {
			return nil, err
		}

		out := &Dossier{POI: poi, Children: make(map[string][]*Item)}
		for _, child := range draft.Children {
			item, err := r.create(ctx, tx, userID, Scope{Entity: child.Entity, ParentID: poi.ID}, child.Refs, child.Values)
			if err != nil {
				return nil, err
			}
			name := child.Entity.Collection
			out.Children[name] = append(out.Children[name], item)
		}
		return out, nil
	})
}

// Get returns the POI base record.
func (s *POIService) Get(ctx context.Context, id int64) (*Item, error) {
	return s.records.Get(ctx, poiScope(), id)
}

// Dossier returns the POI together with its live children.
func (s *POIService) Dossier(ctx context.Context, id int64) (*Dossier, error) {
	poi, err := s.records.Get(ctx, poiScope(), id)
	if err != nil {
		return nil, err
	}

	out := &Dossier{POI: poi, Children: make(map[string][]*Item, len(fieldmap.POIChildren))}
	for _, e := range fieldmap.POIChildren {
		items, err := s.records.List(ctx, Scope{Entity: e, ParentID: id})
		if err != nil {
			return nil, err
		}
		out.Children[e.Collection] = items
	}
	return out, nil
}

// List returns live POIs, newest first.
func (s *POIService) List(ctx context.Context, f POIFilter) (PageOf[*Item], error) {
	items, err := s.records.List(ctx, poiScope())
	if err != nil {
		return PageOf[*Item]{}, err
	}
	slices.Reverse(items)

	if f.Pinned {
		items = slices.DeleteFunc(items, func(it *Item) bool {
			return !it.Values[fieldPinned].Bool()
		})
	}
	if f.Recent > 0 && len(items) > f.Recent {
		items = items[:f.Recent]
	}
	return Paginate(items, f.Page), nil
}

// Edit applies a partial update to the POI base fields.
func (s *POIService) Edit(ctx context.Context, userID, id, version int64, vals fieldmap.Values) (*Item, Changelog, error) {
	return s.records.Edit(ctx, userID, poiScope(), id, version, vals)
}

// Delete soft-deletes the POI. Children keep their own flags.
func (s *POIService) Delete(ctx context.Context, userID, id, version int64) error {
	return s.records.Delete(ctx, userID, poiScope(), id, version)
}

// TogglePin flips is_pinned and returns the updated POI with a status message.
func (s *POIService) TogglePin(ctx context.Context, userID, id int64) (*Item, string, error) {
	r := s.records
	var msg string
	item, err := dbx.WithTxValue(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Item, error) {
		rec, vals, err := r.load(ctx, tx, poiScope(), id)
		if err != nil {
			return nil, err
		}

		pinned := !vals[fieldPinned].Bool()
		if _, err := r.changes.Apply(ctx, tx, fieldmap.POI, rec, fieldmap.Values{fieldPinned: fieldmap.BoolValue(pinned)}); err != nil {
			return nil, err
		}

		verb := ActionUnpin
		msg = MsgUnpinned
		if pinned {
			verb = ActionPin
			msg = MsgPinned
		}
		if err := r.audit.Record(ctx, tx, AuditEntry{UserID: userID, Resource: fieldmap.POI.Resource, Action: Action(verb, id)}); err != nil {
			return nil, err
		}

		out, err := r.mapper.Decrypt(fieldmap.POI, rec.Columns)
		if err != nil {
			return nil, err
		}
		return newItem(rec, out), nil
	})
	if err != nil {
		return nil, "", err
	}
	return item, msg, nil
}

// Count is a labelled tally.
type Count struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Statistics summarises the live dossiers.
type Statistics struct {
	TotalPOIs        int     `json:"total_pois"`
	POIsThisMonth    int     `json:"pois_this_month"`
	POIsLastMonth    int     `json:"pois_last_month"`
	TotalConvictions int     `json:"total_convictions"`
	TopOffenses      []Count `json:"top_offenses"`
	AgeRanges        []Count `json:"age_ranges"`
}

// AgeRanges lists the age buckets in report order.
var AgeRanges = []string{"18-27", "28-37", "38-47", "48-57", "58+", "Unknown"}

func ageRange(age int) string {
	switch {
	case age >= 58:
		return "58+"
	case age >= 48:
		return "48-57"
	case age >= 38:
		return "38-47"
	case age >= 28:
		return "28-37"
	case age >= 18:
		return "18-27"
	}
	return "Unknown"
}

// Statistics computes POI counts, conviction leaders and age buckets.
// Convictions of deleted POIs are not counted.
func (s *POIService) Statistics(ctx context.Context) (*Statistics, error) {
	now := s.records.now()
	pois, err := s.records.List(ctx, poiScope())
	if err != nil {
		return nil, err
	}

	thisMonth := timex.MonthStart(now)
	lastMonth := timex.MonthStart(thisMonth.AddDate(0, 0, -1))

	st := &Statistics{TotalPOIs: len(pois)}
	ages := make(map[string]int, len(AgeRanges))
	live := make(map[int64]bool, len(pois))

	for _, p := range pois {
		live[p.ID] = true

		created := p.Values[fieldmap.FieldCreatedAt].Time()
		switch {
		case !created.Before(thisMonth):
			st.POIsThisMonth++
		case !created.Before(lastMonth):
			st.POIsLastMonth++
		}

		dob := p.Values[fieldDOB]
		if dob.IsNull() {
			ages["Unknown"]++
			continue
		}
		ages[ageRange(timex.YearsBetween(dob.Time(), now))]++
	}
	for _, label := range AgeRanges {
		st.AgeRanges = append(st.AgeRanges, Count{Label: label, Value: ages[label]})
	}

	convictions, err := s.records.List(ctx, Scope{Entity: fieldmap.Conviction})
	if err != nil {
		return nil, err
	}
	perOffense := make(map[int64]int)
	for _, c := range convictions {
		if !live[c.Refs[fieldmap.RefPOI]] {
			continue
		}
		st.TotalConvictions++
		perOffense[c.Refs[fieldmap.RefOffense]]++
	}

	offenses, err := s.records.List(ctx, Scope{Entity: fieldmap.Offense})
	if err != nil {
		return nil, err
	}
	for _, o := range offenses {
		if n := perOffense[o.ID]; n > 0 {
			st.TopOffenses = append(st.TopOffenses, Count{Label: o.Values["name"].Text(), Value: n})
		}
	}
	slices.SortFunc(st.TopOffenses, func(a, b Count) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if len(st.TopOffenses) > topOffenses {
		st.TopOffenses = st.TopOffenses[:topOffenses]
	}
	if st.TopOffenses == nil {
		st.TopOffenses = []Count{}
	}

	return st, nil
}
