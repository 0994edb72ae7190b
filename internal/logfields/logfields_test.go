package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Key drift would break log ingestion schemas.
func TestHelperKeyNames(t *testing.T) {
	at := time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		attr slog.Attr
		key  string
		want string
	}{
		{"AlarmID", AlarmID(7), KeyAlarmID, "7"},
		{"TriggerAt", TriggerAt(at), KeyTriggerAt, "2025-03-03T07:00:00Z"},
		{"TaskKind", TaskKind("STEPS"), KeyTaskKind, "STEPS"},
		{"SessionID", SessionID("s1"), KeySessionID, "s1"},
		{"SessionState", SessionState("ACTIVE"), KeySessionState, "ACTIVE"},
		{"Outcome", Outcome("dismissed"), KeyOutcome, "dismissed"},
		{"DispatchID", DispatchID("d1"), KeyDispatchID, "d1"},
		{"Subject", Subject("alarmd.next"), KeySubject, "alarmd.next"},
		{"Path", Path("/tmp/a.db"), KeyPath, "/tmp/a.db"},
		{"Duration", Duration(1500 * time.Millisecond), KeyDurationMS, "1500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.key, tc.attr.Key)
			require.Equal(t, tc.want, tc.attr.Value.String())
		})
	}
}

func TestError(t *testing.T) {
	require.Equal(t, "", Error(nil).Value.String())
	require.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
