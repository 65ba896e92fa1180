package recognizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnglishBackendRecognize(t *testing.T) {
	// Saturday
	ref := time.Date(2023, 5, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		ref   time.Time
		want  Candidate
	}{
		{
			name:  "tomorrow with pm clock",
			input: "Call mom tomorrow at 2 PM",
			ref:   ref,
			want:  Candidate{Text: "tomorrow at 2 PM", Start: 9, Value: "2023-05-07 14:00:00"},
		},
		{
			name:  "daily recurrence with am clock",
			input: "Check email every day at 9 AM",
			ref:   time.Date(2023, 5, 17, 0, 0, 0, 0, time.UTC),
			want: Candidate{Text: "every day at 9 AM", Start: 12, Value: "09:00:00",
				RecurrenceUnit: UnitDay, RecurrenceSize: 1},
		},
		{
			name:  "numeric date still ahead this year",
			input: "pay rent on 6/1",
			ref:   ref,
			want:  Candidate{Text: "6/1", Start: 12, Value: "2023-06-01"},
		},
		{
			name:  "numeric date already passed rolls to next year",
			input: "dentist on 3/1",
			ref:   ref,
			want:  Candidate{Text: "3/1", Start: 11, Value: "2024-03-01"},
		},
		{
			name:  "bare weekday means next occurrence",
			input: "meet Bob on Monday",
			ref:   ref,
			want:  Candidate{Text: "Monday", Start: 12, Value: "2023-05-08"},
		},
		{
			name:  "noon keyword",
			input: "lunch at noon",
			ref:   ref,
			want:  Candidate{Text: "noon", Start: 9, Value: "12:00:00"},
		},
		{
			name:  "relative offset in hours",
			input: "submit report in 2 hours",
			ref:   ref,
			want:  Candidate{Text: "in 2 hours", Start: 14, Value: "2023-05-06 02:00:00"},
		},
		{
			name:  "bare hour defaults to afternoon",
			input: "wake me at 6",
			ref:   ref,
			want:  Candidate{Text: "at 6", Start: 8, Value: "18:00:00"},
		},
		{
			name:  "tonight carries its own hour",
			input: "take out the trash tonight",
			ref:   ref,
			want:  Candidate{Text: "tonight", Start: 19, Value: "2023-05-06 20:00:00"},
		},
		{
			name:  "bare recurrence anchors to reference date",
			input: "renew domain every year",
			ref:   ref,
			want: Candidate{Text: "every year", Start: 13, Value: "2023-05-06",
				RecurrenceUnit: UnitYear, RecurrenceSize: 1},
		},
		{
			name:  "month name date merges with clock",
			input: "team sync June 5 at 10:30 am",
			ref:   ref,
			want:  Candidate{Text: "June 5 at 10:30 am", Start: 10, Value: "2023-06-05 10:30:00"},
		},
		{
			name:  "every other week keeps its size",
			input: "standup every other week",
			ref:   ref,
			want: Candidate{Text: "every other week", Start: 8, Value: "2023-05-06",
				RecurrenceUnit: UnitWeek, RecurrenceSize: 2},
		},
		{
			name:  "weekly recurrence on a named day",
			input: "water plants every Monday",
			ref:   ref,
			want: Candidate{Text: "every Monday", Start: 13, Value: "2023-05-08",
				RecurrenceUnit: UnitWeek, RecurrenceSize: 1},
		},
		{
			name:  "24 hour clock",
			input: "server restart at 23:45",
			ref:   ref,
			want:  Candidate{Text: "23:45", Start: 18, Value: "23:45:00"},
		},
	}

	backend := NewEnglishBackend()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backend.Recognize(context.Background(), tt.input, tt.ref)
			require.NoError(t, err)
			require.NotEmpty(t, got, "expected a candidate for %q", tt.input)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestEnglishBackendNoMatch(t *testing.T) {
	ref := time.Date(2023, 5, 6, 0, 0, 0, 0, time.UTC)
	backend := NewEnglishBackend()

	for _, input := range []string{
		"",
		"buy more coffee beans",
		"discuss the quarterly budget with finance",
	} {
		got, err := backend.Recognize(context.Background(), input, ref)
		require.NoError(t, err)
		assert.Empty(t, got, "expected no candidates for %q", input)
	}
}

func TestEnglishBackendLocales(t *testing.T) {
	backend := NewEnglishBackend()
	assert.Contains(t, backend.Locales(), "en")
	assert.Contains(t, backend.Locales(), "en-US")
	assert.NotContains(t, backend.Locales(), "*")
}
