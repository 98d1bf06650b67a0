package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    RiskLevel
	}{
		{"benign", "add a helper function", RiskLow},
		{"recursive delete", "rm -rf /tmp/build", RiskCritical},
		{"flag order variant", "rm -fr ./cache", RiskCritical},
		{"mkfs", "mkfs.ext4 /dev/sdb1", RiskCritical},
		{"dd to device", "dd if=image.img of=/dev/sda", RiskCritical},
		{"sql drop", "DROP TABLE users", RiskCritical},
		{"sql delete without where", "DELETE FROM sessions;", RiskCritical},
		{"truncate", "TRUNCATE TABLE logs", RiskCritical},
		{"eval", "eval(userInput)", RiskHigh},
		{"dynamic import", "__import__('os')", RiskHigh},
		{"file removal", "os.remove(path)", RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, label := ClassifyContent(tt.content)
			assert.Equal(t, tt.want, level)
			if tt.want > RiskLow {
				assert.NotEmpty(t, label)
			}
		})
	}
}

func TestClassifyContentMaxWins(t *testing.T) {
	level, label := ClassifyContent("eval(x); rm -rf /data")
	assert.Equal(t, RiskCritical, level)
	assert.Equal(t, "recursive deletion", label)
}

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		action string
		want   RiskLevel
	}{
		{"deploy", RiskCritical},
		{"database", RiskCritical},
		{"file_delete", RiskHigh},
		{"config_change", RiskMedium},
		{"file_modify", RiskLow},
		{" Deploy ", RiskCritical},
		{"unknown_thing", RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAction(tt.action))
		})
	}
}

func TestClassifyPaths(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  RiskLevel
	}{
		{"empty", nil, RiskLow},
		{"plain source file", []string{"pkg/server/handler.go"}, RiskLow},
		{"deploy tree", []string{"deploy/app.yaml"}, RiskHigh},
		{"env file variant", []string{".env.local"}, RiskHigh},
		{"pem anywhere", []string{"certs/server.pem"}, RiskHigh},
		{"key file", []string{"id_rsa.key"}, RiskHigh},
		{"migrations", []string{"database/migrations/0001_init.sql"}, RiskHigh},
		{"production config", []string{"config/production/app.yaml"}, RiskHigh},
		{"mixed, one sensitive", []string{"main.go", "secrets/token"}, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, matched := ClassifyPaths(tt.paths)
			assert.Equal(t, tt.want, level)
			if tt.want == RiskHigh {
				assert.NotEmpty(t, matched)
			}
		})
	}
}

func TestRiskLevelString(t *testing.T) {
	assert.Equal(t, "low", RiskLow.String())
	assert.Equal(t, "medium", RiskMedium.String())
	assert.Equal(t, "high", RiskHigh.String())
	assert.Equal(t, "critical", RiskCritical.String())
	assert.Equal(t, "unknown", RiskLevel(42).String())
}
