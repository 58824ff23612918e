package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		tally      Tally
		wantReason string
		sections   []string
		parts      []string
	}{
		{
			name:     "valid single section",
			tally:    Tally{Sections: []any{"123456"}, Parts: []any{"PART 1 - GENERAL"}},
			sections: []string{"123456"},
			parts:    []string{"PART 1 - GENERAL"},
		},
		{
			name:     "empty lists are valid",
			tally:    Tally{Sections: []any{}, Parts: []any{}},
			sections: []string{},
			parts:    []string{},
		},
		{
			name:       "too many sections",
			tally:      Tally{Sections: []any{"123456", "654321"}, Parts: []any{}},
			wantReason: "2 sections returned",
		},
		{
			name:       "bad section code",
			tally:      Tally{Sections: []any{"12345"}, Parts: []any{}},
			wantReason: "invalid section code 12345",
		},
		{
			name:       "section code with letters",
			tally:      Tally{Sections: []any{"12345A"}, Parts: []any{}},
			wantReason: "invalid section code 12345A",
		},
		{
			name:       "sections not a list",
			tally:      Tally{Sections: "123456", Parts: []any{}},
			wantReason: "sections or parts is not a list of strings",
		},
		{
			name:       "parts not a list",
			tally:      Tally{Sections: []any{}, Parts: "PART 1"},
			wantReason: "sections or parts is not a list of strings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections, parts, err := Validate(tt.tally, 4)
			if tt.wantReason == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.sections, sections)
				assert.Equal(t, tt.parts, parts)
				return
			}
			require.Error(t, err)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantReason, vErr.Reason)
			assert.Contains(t, vErr.Message, "page #4")
		})
	}
}

func TestValidate_OrderCountBeforeFormat(t *testing.T) {
	_, _, err := Validate(Tally{Sections: []any{"bad", "worse"}, Parts: []any{}}, 1)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "2 sections returned", vErr.Reason)
}
