package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseWindowSize(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantSize  time.Duration
		wantError bool
	}{
		{name: "minute", input: "1m", wantSize: time.Minute},
		{name: "hour", input: "2h", wantSize: 2 * time.Hour},
		{name: "days suffix", input: "2d", wantSize: 48 * time.Hour},
		{name: "empty invalid", input: "", wantError: true},
		{name: "negative invalid", input: "-1m", wantError: true},
		{name: "zero invalid", input: "0m", wantError: true},
		{name: "bad day format invalid", input: "xd", wantError: true},
		{name: "unknown unit invalid", input: "10x", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := ParseWindowSize(tc.input)
			if tc.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantSize, spec.Size)
		})
	}
}

func TestNecroPolicy_Bumps(t *testing.T) {
	posted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	post := PostRef{PostID: 1, CreatorID: 10, CommunityID: 3, Published: posted}
	policy := DefaultNecroPolicy()

	tests := []struct {
		name      string
		commenter int64
		published time.Time
		want      bool
	}{
		{name: "fresh reply from someone else", commenter: 11, published: posted.Add(time.Hour), want: true},
		{name: "creator replying to own post", commenter: 10, published: posted.Add(time.Hour), want: false},
		{name: "reply just inside window", commenter: 11, published: posted.Add(47 * time.Hour), want: true},
		{name: "reply at window edge", commenter: 11, published: posted.Add(48 * time.Hour), want: false},
		{name: "necro reply", commenter: 11, published: posted.Add(30 * 24 * time.Hour), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, policy.Bumps(post, tc.commenter, tc.published))
		})
	}
}
