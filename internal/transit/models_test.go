package transit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/commutedeck/commutedeck/internal/transit"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		state string
		text  string
		want  transit.Status
	}{
		{"empty", "", "", transit.StatusNormal},
		{"normal text", "平常運転", "現在、平常どおり運転しています。", transit.StatusNormal},
		{"suspended", "運転見合わせ", "", transit.StatusSuspend},
		{"cancelled", "", "一部列車が運休となっています。", transit.StatusSuspend},
		{"through service", "直通運転中止", "", transit.StatusDirect},
		{"resumed", "運転再開", "運転を再開しましたが、遅れが出ています。", transit.StatusRestore},
		{"delayed", "遅延", "", transit.StatusDelay},
		{"disrupted", "", "ダイヤが乱れています。", transit.StatusDelay},
		{"english suspend", "", "Service suspended due to an accident.", transit.StatusSuspend},
		{"english delay", "", "Trains are Delayed.", transit.StatusDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transit.Classify(tt.state, tt.text))
		})
	}
}

func TestStatus_Severity(t *testing.T) {
	assert.Greater(t, transit.StatusSuspend.Severity(), transit.StatusDirect.Severity())
	assert.Greater(t, transit.StatusDirect.Severity(), transit.StatusDelay.Severity())
	assert.Greater(t, transit.StatusDelay.Severity(), transit.StatusRestore.Severity())
	assert.Greater(t, transit.StatusRestore.Severity(), transit.StatusNormal.Severity())
}

func TestParseStatus(t *testing.T) {
	s, ok := transit.ParseStatus("delay")
	assert.True(t, ok)
	assert.Equal(t, transit.StatusDelay, s)

	s, ok = transit.ParseStatus("bogus")
	assert.False(t, ok)
	assert.Equal(t, transit.StatusNormal, s)
}
