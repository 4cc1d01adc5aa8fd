package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitleFields(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  TitleFields
	}{
		{
			name:  "n-number with type and operator",
			title: "Sample Airlines B738 N123AB near Denver, engine failure on approach",
			want:  TitleFields{Registration: "N123AB", AircraftType: "B738", Operator: "Sample Airlines"},
		},
		{
			name:  "hyphenated registration",
			title: "Royal Dutch B772 PH-BQC at Amsterdam, tail strike on departure",
			want:  TitleFields{Registration: "PH-BQC", AircraftType: "B772", Operator: "Royal Dutch"},
		},
		{
			name:  "airbus code",
			title: "Medfly Express A320 D-AIZU over Frankfurt, cabin pressure problem",
			want:  TitleFields{Registration: "D-AIZU", AircraftType: "A320", Operator: "Medfly Express"},
		},
		{
			name:  "general aviation cessna",
			title: "C172 N9876F at Palo Alto, gear collapse on landing",
			want:  TitleFields{Registration: "N9876F", AircraftType: "C172", Operator: ""},
		},
		{
			name:  "no registration",
			title: "Crop duster down near Fresno",
			want:  TitleFields{Registration: "", AircraftType: "", Operator: "Crop duster down"},
		},
		{
			name:  "empty title",
			title: "",
			want:  TitleFields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTitleFields(tt.title)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRegistrationPatterns(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"N1 on final", "N1"},
		{"N12345 lost power", "N12345"},
		{"N123AB taxiing", "N123AB"},
		{"VH-OQA diverted", "VH-OQA"},
		{"G-EUUU returned", "G-EUUU"},
		{"no reg here", ""},
	}
	for _, tt := range tests {
		got := ExtractTitleFields(tt.title).Registration
		assert.Equal(t, tt.want, got, "title %q", tt.title)
	}
}
