package feed

import (
	"reflect"
	"testing"
)

func validRecord() map[string]string {
	return map[string]string{
		FieldReference: "RS-1",
		FieldTitle:     "Villa",
		FieldPrice:     "AED 25,000,000",
		FieldBedroom:   "4",
		FieldBathroom:  "5",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   []string
	}{
		{"valid", func(map[string]string) {}, nil},
		{"plain price", func(r map[string]string) { r[FieldPrice] = "180000" }, nil},
		{"price with cents", func(r map[string]string) { r[FieldPrice] = "1,250,000.00" }, nil},
		{"missing title", func(r map[string]string) { delete(r, FieldTitle) }, []string{"title_en is required"}},
		{"blank reference", func(r map[string]string) { r[FieldReference] = "   " }, []string{"reference_number is required"}},
		{"price not numeric", func(r map[string]string) { r[FieldPrice] = "call for price" }, []string{"price: must be an integer amount"}},
		{"bedroom studio", func(r map[string]string) { r[FieldBedroom] = "studio" }, []string{"bedroom: must be an integer"}},
		{
			"several problems",
			func(r map[string]string) {
				delete(r, FieldTitle)
				r[FieldBathroom] = "2.5"
				r[FieldBedroom] = "x"
			},
			[]string{"title_en is required", "bathroom: must be an integer", "bedroom: must be an integer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			got := Validate(r)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Validate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate_IgnoresOptionalFields(t *testing.T) {
	r := validRecord()
	r[FieldSize] = "not a number"
	r["unknown"] = "anything"
	if errs := Validate(r); len(errs) != 0 {
		t.Fatalf("expected valid record, got %v", errs)
	}
}
