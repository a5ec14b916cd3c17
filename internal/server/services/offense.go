package services

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
)

const (
	MsgOffenseExists = "Offense already exists"

	fieldOffenseName = "name"
	// SearchCutoff is the minimum similarity for a fuzzy offense match.
	SearchCutoff = 0.5
)

// OffenseService manages the offense catalog. Offenses are removed
// physically; an offense still referenced by a conviction cannot be deleted.
type OffenseService struct {
	records *RecordService
}

func NewOffenseService(records *RecordService) *OffenseService {
	return &OffenseService{records: records}
}

func offenseScope() Scope { return Scope{Entity: fieldmap.Offense} }

// CapitalizeName upper-cases the first letter and lower-cases the rest.
func CapitalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Create normalizes the name and rejects duplicates before encrypting
// anything.
func (s *OffenseService) Create(ctx context.Context, userID int64, vals fieldmap.Values) (*Item, error) {
	vals = normalizeOffense(vals)
	r := s.records
	return dbx.WithTxValue(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Item, error) {
		if err := s.checkUnique(ctx, tx, vals, 0); err != nil {
			return nil, err
		}
		return r.create(ctx, tx, userID, offenseScope(), nil, vals)
	})
}

func (s *OffenseService) Get(ctx context.Context, id int64) (*Item, error) {
	return s.records.Get(ctx, offenseScope(), id)
}

// List returns the catalog in id order, or by relevance when q is set.
func (s *OffenseService) List(ctx context.Context, q string, p Page) (PageOf[*Item], error) {
	items, err := s.records.List(ctx, offenseScope())
	if err != nil {
		return PageOf[*Item]{}, err
	}
	if q != "" {
		items = Search(items, q)
	}
	return Paginate(items, p), nil
}

// Edit renames or redescribes an offense. A new name must stay unique.
func (s *OffenseService) Edit(ctx context.Context, userID, id, version int64, vals fieldmap.Values) (*Item, Changelog, error) {
	vals = normalizeOffense(vals)
	r := s.records

	var log Changelog
	item, err := dbx.WithTxValue(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Item, error) {
		if err := s.checkUnique(ctx, tx, vals, id); err != nil {
			return nil, err
		}
		var item *Item
		var err error
		item, log, err = r.edit(ctx, tx, userID, offenseScope(), id, version, vals)
		return item, err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, log, nil
}

// Delete removes the offense row.
func (s *OffenseService) Delete(ctx context.Context, userID, id int64) error {
	return s.records.Delete(ctx, userID, offenseScope(), id, 0)
}

func (s *OffenseService) checkUnique(ctx context.Context, tx dbx.DBTX, vals fieldmap.Values, self int64) error {
	name, ok := vals[fieldOffenseName]
	if !ok || name.IsNull() {
		return nil
	}
	existing, err := s.records.list(ctx, tx, offenseScope())
	if err != nil {
		return err
	}
	for _, it := range existing {
		if it.ID != self && it.Values[fieldOffenseName].Text() == name.Text() {
			return common.NewError(common.ErrBadRequest, MsgOffenseExists)
		}
	}
	return nil
}

func normalizeOffense(vals fieldmap.Values) fieldmap.Values {
	name, ok := vals[fieldOffenseName]
	if !ok || name.IsNull() {
		return vals
	}
	out := make(fieldmap.Values, len(vals))
	for k, v := range vals {
		out[k] = v
	}
	out[fieldOffenseName] = fieldmap.TextValue(CapitalizeName(name.Text()))
	return out
}

// Search ranks offenses by name against q. Names containing q come first,
// then names whose similarity to q reaches SearchCutoff, best match first.
func Search(items []*Item, q string) []*Item {
	q = CapitalizeName(q)
	lq := strings.ToLower(q)

	type hit struct {
		item      *Item
		substring bool
		score     float64
	}
	var hits []hit
	for _, it := range items {
		name := it.Values[fieldOffenseName].Text()
		sub := strings.Contains(strings.ToLower(name), lq)
		score := levenshtein.Similarity(q, name, nil)
		if sub || score >= SearchCutoff {
			hits = append(hits, hit{item: it, substring: sub, score: score})
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		if a.substring != b.substring {
			if a.substring {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.score, a.score)
	})

	out := make([]*Item, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.item)
	}
	return out
}
