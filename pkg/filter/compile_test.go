package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcts/cpp-context-notification/pkg/filter"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name       string
		filter     filter.Filter
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "field equals",
			filter:     filter.FieldEquals(filter.FieldUserID, "user-1"),
			wantClause: "user_id = ?",
			wantArgs:   []any{"user-1"},
		},
		{
			name: "and of two leaves",
			filter: filter.And(
				filter.FieldEquals(filter.FieldUserID, "user-1"),
				filter.FieldEquals(filter.FieldStreamID, "stream-1"),
			),
			wantClause: "(user_id = ? AND stream_id = ?)",
			wantArgs:   []any{"user-1", "stream-1"},
		},
		{
			name: "or of three leaves",
			filter: filter.Or(
				filter.FieldEquals(filter.FieldUserID, "user-1"),
				filter.FieldEquals(filter.FieldStreamID, "stream-1"),
				filter.FieldEquals(filter.FieldName_, "public.event"),
			),
			wantClause: "(user_id = ? OR stream_id = ? OR name = ?)",
			wantArgs:   []any{"user-1", "stream-1", "public.event"},
		},
		{
			name: "nested groups",
			filter: filter.And(
				filter.FieldEquals(filter.FieldName_, "public.listing.hearing-changes-saved"),
				filter.Or(
					filter.FieldEquals(filter.FieldUserID, "user-1"),
					filter.FieldEquals(filter.FieldStreamID, "stream-1"),
				),
			),
			wantClause: "(name = ? AND (user_id = ? OR stream_id = ?))",
			wantArgs:   []any{"public.listing.hearing-changes-saved", "user-1", "stream-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := filter.Compile(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClause, compiled.Clause)
			assert.Equal(t, tt.wantArgs, compiled.Args)
		})
	}
}

func TestCompileIsDeterministicAcrossRoundTrip(t *testing.T) {
	f := filter.And(
		filter.FieldEquals(filter.FieldName_, "public.event"),
		filter.Or(
			filter.FieldEquals(filter.FieldUserID, "user-1"),
			filter.And(
				filter.FieldEquals(filter.FieldStreamID, "stream-1"),
				filter.FieldEquals(filter.FieldSessionID, "session-1"),
			),
		),
	)

	direct, err := filter.Compile(f)
	require.NoError(t, err)

	serialized, err := filter.Serialize(f)
	require.NoError(t, err)
	parsed, err := filter.Parse([]byte(serialized))
	require.NoError(t, err)

	roundTripped, err := filter.Compile(parsed)
	require.NoError(t, err)

	assert.Equal(t, direct, roundTripped)

	again, err := filter.Compile(f)
	require.NoError(t, err)
	assert.Equal(t, direct, again)
}

func TestCompileRejectsUnresolvedCurrentUser(t *testing.T) {
	_, err := filter.Compile(filter.CurrentUser())
	require.ErrorIs(t, err, filter.ErrUnresolvedCurrentUser)

	_, err = filter.Compile(filter.And(
		filter.FieldEquals(filter.FieldName_, "public.event"),
		filter.CurrentUser(),
	))
	require.ErrorIs(t, err, filter.ErrUnresolvedCurrentUser)
}

func TestValueIsBoundNotConcatenated(t *testing.T) {
	compiled, err := filter.Compile(filter.FieldEquals(filter.FieldUserID, "x' OR '1'='1"))
	require.NoError(t, err)
	assert.Equal(t, "user_id = ?", compiled.Clause)
	assert.Equal(t, []any{"x' OR '1'='1"}, compiled.Args)
}
