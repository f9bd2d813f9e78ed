package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"diglet/internal/models"
)

var credentialKeys = []string{"host", "port", "dbname", "user", "password"}

// ImportProfile reads a credential JSON object. Every key is required; the
// port may be a number or a numeric string. Nothing is returned on error, so
// callers never apply a partial profile.
func ImportProfile(r io.Reader) (models.ConnectionProfile, error) {
	p, err := importProfile(r)
	if err != nil {
		return models.ConnectionProfile{}, models.NewOpError(models.ImportCredentialsError, "import credentials", "", err)
	}
	return p, nil
}

func importProfile(r io.Reader) (models.ConnectionProfile, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return models.ConnectionProfile{}, fmt.Errorf("parse JSON: %w", err)
	}

	var missing []string
	for _, k := range credentialKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return models.ConnectionProfile{}, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
	}

	var p models.ConnectionProfile
	var err error
	if p.Host, err = stringValue(raw, "host"); err != nil {
		return models.ConnectionProfile{}, err
	}
	if p.Port, err = portValue(raw["port"]); err != nil {
		return models.ConnectionProfile{}, err
	}
	if p.DBName, err = stringValue(raw, "dbname"); err != nil {
		return models.ConnectionProfile{}, err
	}
	if p.User, err = stringValue(raw, "user"); err != nil {
		return models.ConnectionProfile{}, err
	}
	if p.Password, err = stringValue(raw, "password"); err != nil {
		return models.ConnectionProfile{}, err
	}
	return p, nil
}

// stringValue accepts a JSON string or number.
func stringValue(raw map[string]json.RawMessage, key string) (string, error) {
	var s string
	if err := json.Unmarshal(raw[key], &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw[key], &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("key %q must be a string", key)
}

func portValue(msg json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(msg, &n); err == nil {
		return validPort(n)
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, errors.New(`key "port" must be a number or numeric string`)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf(`key "port": %w`, err)
	}
	return validPort(n)
}

func validPort(n int) (int, error) {
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf(`key "port" out of range: %d`, n)
	}
	return n, nil
}

// ExportProfile writes the profile in the credential file format.
func ExportProfile(w io.Writer, p models.ConnectionProfile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return models.NewOpError(models.ImportCredentialsError, "export credentials", "", err)
	}
	return nil
}
