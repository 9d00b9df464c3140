package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

func TestSheetRecognizer(t *testing.T) {
	t.Parallel()
	r := NewSheetRecognizer()

	cases := []struct {
		name    string
		headers []string
		want    schema.Key
	}{
		{"zoom calls", []string{"Name", "Total Calls", "Completed Calls", "Avg Call Time", "Total Call Time", "Total Hold Time"}, schema.Calls},
		{"leads", []string{"First Name", "Email", "Stage", "Matter ID", "Assigned Intake Specialist"}, schema.Leads},
		{"initial consultation", []string{"First Name", "Initial Consultation With Pji Law", "Sub Status", "Lead Attorney"}, schema.Init},
		{"discovery meeting", []string{"First Name", "Discovery Meeting With Pji Law", "Sub Status", "Reason for Rescheduling"}, schema.Disc},
		{"new client list", []string{"Client", "Date we had BOTH the signed CLA and full payment", "Responsible Attorney", "Retained With Consult (Y/N)"}, schema.NCL},
		{"unknown", []string{"foo", "bar"}, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := r.Recognize(tc.headers)
			assert.Equal(t, tc.want, got.Kind)
			if tc.want != "" {
				assert.GreaterOrEqual(t, got.Confidence, 0.5)
			}
		})
	}
}

func TestSheetRecognizerPrefersStrongerMatch(t *testing.T) {
	t.Parallel()
	// 线索表同样带有 IC/DM 日期列
	got := NewSheetRecognizer().Recognize([]string{
		"First Name", "Email", "Stage", "Sub Status", "Reason for Rescheduling", "Lead Attorney",
		"Assigned Intake Specialist", "Initial Consultation With Pji Law", "Discovery Meeting With Pji Law",
	})
	assert.Equal(t, schema.Leads, got.Kind)
}
