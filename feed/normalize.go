package feed

import "strings"

// Record field names as they appear in the feed.
const (
	FieldReference    = "reference_number"
	FieldTitle        = "title_en"
	FieldDescription  = "description_en"
	FieldPrice        = "price"
	FieldBedroom      = "bedroom"
	FieldBathroom     = "bathroom"
	FieldSize         = "size"
	FieldPlotSize     = "plot_size"
	FieldCommunity    = "community"
	FieldSubCommunity = "sub_community"
	FieldCity         = "city"
	FieldOfferingType = "offering_type"
	FieldPropertyType = "property_type"
	FieldPermitNumber = "permit_number"
	FieldLastUpdate   = "last_update"
	FieldAmenities    = "amenities"
)

type Agent struct {
	Name  string
	Email string
	Phone string
}

func (a Agent) IsZero() bool {
	return a.Name == "" && a.Email == ""
}

// Normalized is a feed entry flattened to plain strings.
type Normalized struct {
	Record map[string]string
	Agent  Agent
	Photos []string
}

func (n Normalized) Reference() string {
	return n.Record[FieldReference]
}

func (n Normalized) Get(field string) string {
	return n.Record[field]
}

// Normalize flattens one entry: every field takes its first value, the
// agent is flattened to its own struct and photos reduce to their URLs.
// Attributes on the entry fill in fields that have no child element of the
// same name. Nothing is validated here.
func Normalize(entry Value) Normalized {
	out := Normalized{Record: make(map[string]string)}

	obj := entry.Unwrap()
	if obj.Kind != KindObject {
		return out
	}

	for key, val := range obj.Fields {
		switch key {
		case "$", "_":
		case "agent":
			out.Agent = normalizeAgent(val)
		case "photo":
			out.Photos = normalizePhotos(val)
		default:
			out.Record[key] = strings.TrimSpace(val.String())
		}
	}

	if attrs, ok := obj.Fields["$"]; ok && attrs.Kind == KindObject {
		for key, val := range attrs.Fields {
			if _, exists := out.Record[key]; !exists {
				out.Record[key] = strings.TrimSpace(val.String())
			}
		}
	}

	return out
}

func normalizeAgent(v Value) Agent {
	return Agent{
		Name:  fieldText(v, "name"),
		Email: fieldText(v, "email"),
		Phone: fieldText(v, "phone"),
	}
}

func normalizePhotos(v Value) []string {
	var photos []string
	for _, p := range v.List() {
		if p.Kind != KindObject {
			if s := strings.TrimSpace(p.String()); s != "" {
				photos = append(photos, s)
			}
			continue
		}
		urls, ok := p.Fields["url"]
		if !ok {
			continue
		}
		for _, u := range urls.List() {
			if s := strings.TrimSpace(u.String()); s != "" {
				photos = append(photos, s)
			}
		}
	}
	return photos
}

func fieldText(v Value, name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(f.String())
}
