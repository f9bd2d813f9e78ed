package services

import (
	"bytes"
	"strings"
	"testing"

	"diglet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportProfile(t *testing.T) {
	cases := map[string]string{
		"numeric port": `{"host":"db.local","port":5433,"dbname":"gis","user":"ana","password":"s3cret"}`,
		"string port":  `{"host":"db.local","port":"5433","dbname":"gis","user":"ana","password":"s3cret"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := ImportProfile(strings.NewReader(body))
			require.NoError(t, err)
			assert.Equal(t, models.ConnectionProfile{
				Host: "db.local", Port: 5433, DBName: "gis", User: "ana", Password: "s3cret",
			}, p)
		})
	}
}

func TestImportProfile_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing password": `{"host":"db.local","port":5432,"dbname":"gis","user":"ana"}`,
		"malformed":        `{"host":`,
		"bad port":         `{"host":"h","port":"abc","dbname":"d","user":"u","password":"p"}`,
		"port range":       `{"host":"h","port":70000,"dbname":"d","user":"u","password":"p"}`,
		"object host":      `{"host":{},"port":1,"dbname":"d","user":"u","password":"p"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := ImportProfile(strings.NewReader(body))
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.ImportCredentialsError))
			assert.Equal(t, models.ConnectionProfile{}, p, "nothing partially applied")
		})
	}
}

func TestExportProfile_RoundTrip(t *testing.T) {
	in := models.ConnectionProfile{Host: "h", Port: 5432, DBName: "d", User: "u", Password: "p"}

	var buf bytes.Buffer
	require.NoError(t, ExportProfile(&buf, in))
	assert.Contains(t, buf.String(), `"dbname": "d"`)

	out, err := ImportProfile(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
