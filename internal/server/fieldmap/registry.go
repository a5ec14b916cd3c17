package fieldmap

import (
	"cmp"
	"slices"
)

// Reference column names.
const (
	RefPOI     = "poi_id"
	RefOffense = "offense_id"
	RefUser    = "user_id"
)

var registry []*Entity

func register(e *Entity) *Entity {
	e.withLifecycle()
	registry = append(registry, e)
	return e
}

var POI = register(&Entity{
	Resource:  "poi",
	Table:     "pois",
	Display:   "full_name",
	Lifecycle: SoftDeletable,
	Fields: []Field{
		{Name: "pfp_url", Type: Text},
		{Name: "full_name", Type: Text, Required: true},
		{Name: "alias", Type: Text},
		{Name: "dob", Type: DateTime},
		{Name: "state_of_origin", Type: Text},
		{Name: "lga_of_origin", Type: Text},
		{Name: "district_of_origin", Type: Text},
		{Name: "pob", Type: Text},
		{Name: "nationality", Type: Text},
		{Name: "religion", Type: Text},
		{Name: "political_affiliation", Type: Text},
		{Name: "tribal_union", Type: Text},
		{Name: "last_seen_date", Type: Date},
		{Name: "last_seen_time", Type: Time},
		{Name: "notes", Type: Text},
		{Name: "is_pinned", Type: Boolean, Required: true, System: true, Default: BoolValue(false)},
	},
})

var IDDocument = register(&Entity{
	Resource:   "id-doc",
	Collection: "id_documents",
	Table:      "id_documents",
	Parent:     RefPOI,
	Display:    "id_number",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "type", Type: Text, Required: true},
		{Name: "id_number", Type: Text, Required: true},
	},
})

var GSMNumber = register(&Entity{
	Resource:   "gsm",
	Collection: "gsm_numbers",
	Table:      "gsm_numbers",
	Parent:     RefPOI,
	Display:    "number",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "service_provider", Type: Text, Required: true},
		{Name: "number", Type: Text, Required: true},
		{Name: "last_call_date", Type: Date},
		{Name: "last_call_time", Type: Time},
	},
})

var ResidentialAddress = register(&Entity{
	Resource:   "address",
	Collection: "residential_addresses",
	Table:      "residential_addresses",
	Parent:     RefPOI,
	Display:    "city",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "country", Type: Text, Required: true},
		{Name: "state", Type: Text, Required: true},
		{Name: "city", Type: Text, Required: true},
		{Name: "address", Type: Text},
	},
})

var KnownAssociate = register(&Entity{
	Resource:   "associate",
	Collection: "known_associates",
	Table:      "known_associates",
	Parent:     RefPOI,
	Display:    "full_name",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "full_name", Type: Text, Required: true},
		{Name: "known_gsm_numbers", Type: Text},
		{Name: "relationship", Type: Text, Required: true},
		{Name: "occupation", Type: Text},
		{Name: "residential_address", Type: Text},
		{Name: "last_seen_date", Type: Date},
		{Name: "last_seen_time", Type: Time},
	},
})

var EmploymentHistory = register(&Entity{
	Resource:   "employment",
	Collection: "employment_history",
	Table:      "employment_history",
	Parent:     RefPOI,
	Display:    "company",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "company", Type: Text, Required: true},
		{Name: "employment_type", Type: Text, Required: true},
		{Name: "from_date", Type: Date, Required: true},
		{Name: "to_date", Type: Date},
		{Name: "current_job", Type: Boolean, Required: true},
		{Name: "description", Type: Text},
	},
})

var VeteranStatus = register(&Entity{
	Resource:     "veteran-status",
	Collection:   "veteran_status",
	Table:        "veteran_statuses",
	Parent:       RefPOI,
	Display:      "section",
	UniqueParent: true,
	Lifecycle:    SoftDeletable,
	Fields: []Field{
		{Name: "is_veteran", Type: Boolean, Required: true},
		{Name: "section", Type: Text},
		{Name: "location", Type: Text},
		{Name: "id_card", Type: Text},
		{Name: "id_card_issuer", Type: Text},
		{Name: "from_date", Type: Date},
		{Name: "to_date", Type: Date},
		{Name: "notes", Type: Text},
	},
})

var EducationalBackground = register(&Entity{
	Resource:   "education",
	Collection: "educational_background",
	Table:      "educational_background",
	Parent:     RefPOI,
	Display:    "institute_name",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "type", Type: Text, Required: true},
		{Name: "institute_name", Type: Text, Required: true},
		{Name: "country", Type: Text, Required: true},
		{Name: "state", Type: Text},
		{Name: "from_date", Type: Date, Required: true},
		{Name: "to_date", Type: Date},
		{Name: "current_institute", Type: Boolean, Required: true},
	},
})

var Conviction = register(&Entity{
	Resource:   "conviction",
	Collection: "convictions",
	Table:      "poi_offenses",
	Parent:     RefPOI,
	Refs:       []string{RefOffense},
	Display:    "case_id",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "case_id", Type: Text},
		{Name: "date_convicted", Type: Date, Required: true},
		{Name: "notes", Type: Text},
	},
})

var FrequentedSpot = register(&Entity{
	Resource:   "frequented-spot",
	Collection: "frequented_spots",
	Table:      "frequented_spots",
	Parent:     RefPOI,
	Display:    "address",
	Lifecycle:  SoftDeletable,
	Fields: []Field{
		{Name: "country", Type: Text, Required: true},
		{Name: "state", Type: Text},
		{Name: "lga", Type: Text},
		{Name: "address", Type: Text, Required: true},
		{Name: "from_date", Type: Date},
		{Name: "to_date", Type: Date},
		{Name: "notes", Type: Text},
	},
})

// Offense is the reference catalog. It is deleted physically.
var Offense = register(&Entity{
	Resource:  "offense",
	Table:     "offenses",
	Display:   "name",
	Lifecycle: Editable,
	Fields: []Field{
		{Name: "name", Type: Text, Required: true},
		{Name: "description", Type: Text},
	},
})

var AuditLog = register(&Entity{
	Resource:  "audit-log",
	Table:     "audit_logs",
	Parent:    RefUser,
	Lifecycle: AppendOnly,
	Fields: []Field{
		{Name: "resource", Type: Text, Required: true},
		{Name: "action", Type: Text, Required: true},
		{Name: "notes", Type: Text},
	},
})

var LoginAttempt = register(&Entity{
	Resource:  "login-attempt",
	Table:     "login_attempts",
	Lifecycle: Editable,
	Fields: []Field{
		{Name: "badge_num", Type: Text, Required: true},
		{Name: "is_success", Type: Boolean, Required: true},
	},
})

// POIChildren lists the soft-deletable entity types owned by a POI, in
// dossier order. veteran_status is nested as a single object.
var POIChildren = []*Entity{
	IDDocument,
	GSMNumber,
	ResidentialAddress,
	KnownAssociate,
	EmploymentHistory,
	EducationalBackground,
	FrequentedSpot,
	Conviction,
	VeteranStatus,
}

// ChildCollection resolves a collection key to its POI child entity.
func ChildCollection(name string) (*Entity, bool) {
	for _, e := range POIChildren {
		if e.Collection == name {
			return e, true
		}
	}
	return nil, false
}

// Entities returns every registered entity, sorted by resource.
func Entities() []*Entity {
	out := slices.Clone(registry)
	slices.SortFunc(out, func(a, b *Entity) int { return cmp.Compare(a.Resource, b.Resource) })
	return out
}
