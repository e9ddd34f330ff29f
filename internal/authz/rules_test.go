package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Evaluate(context.Background(), "ghost", "u1", Item{}, nil, nil)
	require.ErrorIs(t, err, ErrUnknownRule)

	r.Register("allow", AllowAll)
	ev, ok := r.Lookup("allow")
	require.True(t, ok)
	require.NotNil(t, ev)

	pass, err := r.Evaluate(context.Background(), "allow", "u1", Item{}, nil, nil)
	require.NoError(t, err)
	require.True(t, pass)
}

func TestOwnerMatch(t *testing.T) {
	cases := []struct {
		name     string
		userID   string
		ruleData []byte
		params   Params
		want     bool
		wantErr  bool
	}{
		{name: "default param matches", userID: "u1", params: Params{"owner": "u1"}, want: true},
		{name: "default param mismatch", userID: "u1", params: Params{"owner": "u2"}, want: false},
		{name: "custom param", userID: "u1", ruleData: []byte(`{"owner_param":"author_id"}`), params: Params{"author_id": "u1"}, want: true},
		{name: "custom param ignores default key", userID: "u1", ruleData: []byte(`{"owner_param":"author_id"}`), params: Params{"owner": "u1"}, want: false},
		{name: "missing param denies", userID: "u1", params: nil, want: false},
		{name: "numeric owner value", userID: "42", params: Params{"owner": 42}, want: true},
		{name: "empty data falls back to default", userID: "u1", ruleData: []byte{}, params: Params{"owner": "u1"}, want: true},
		{name: "corrupt data errors", userID: "u1", ruleData: []byte(`{`), params: Params{"owner": "u1"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := OwnerMatch.Execute(context.Background(), tc.userID, Item{}, tc.ruleData, tc.params)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
