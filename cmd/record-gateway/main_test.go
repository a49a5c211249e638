package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triage-ai/palisade/services/record_gateway/internal/auth"
	"github.com/triage-ai/palisade/services/record_gateway/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		APIToken:           "pat-test",
		BaseID:             "appTEST",
		APIURL:             apiURL,
		RateLimitPerSec:    5,
		RequestTimeoutS:    5,
		TableTenants:       "tblTenants",
		TableTickets:       "tblTickets",
		TableResidences:    "tblResidences",
		TableMessages:      "tblMessages",
		TableProfessionals: "tblProfessionals",
		LogLevel:           "error",
		Transport:          config.TransportStdio,
	}
}

func TestParseArguments(t *testing.T) {
	args, err := parseArguments(`{"table":"TENANTS","max_records":10}`)
	require.NoError(t, err)
	assert.Equal(t, "TENANTS", args["table"])

	args, err = parseArguments("null")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = parseArguments(`["TENANTS"]`)
	require.Error(t, err)
}

func TestRunCall_GetRecord(t *testing.T) {
	var gotPath, gotAuth string
	remoteSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"recA","createdTime":"2026-01-01T00:00:00.000Z","fields":{"Name":"Alice"}}`))
	}))
	defer remoteSvc.Close()

	var out bytes.Buffer
	err := runCall(context.Background(), testConfig(remoteSvc.URL+"/v0"), "get_record",
		map[string]any{"table": "TENANTS", "record_id": "recA"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "/v0/appTEST/tblTenants/recA", gotPath)
	assert.Equal(t, "Bearer pat-test", gotAuth)
	assert.Contains(t, out.String(), "Record ID: recA")
	assert.Contains(t, out.String(), "  • Name: Alice")
}

func TestRunCall_FailureExitsNonZero(t *testing.T) {
	var hits int
	remoteSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer remoteSvc.Close()

	var out bytes.Buffer
	err := runCall(context.Background(), testConfig(remoteSvc.URL+"/v0"), "get_record",
		map[string]any{"table": "TENANTS", "record_id": "abc"}, &out)
	assert.ErrorIs(t, err, errCommandFailed)
	assert.True(t, strings.HasPrefix(out.String(), "❌ Validation error:"))
	assert.Zero(t, hits)
}

func TestToolsCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tools"})
	require.NoError(t, root.Execute())

	var tools []struct {
		Name        string         `json:"name"`
		InputSchema map[string]any `json:"inputSchema"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &tools))
	require.Len(t, tools, 6)
	assert.Equal(t, "list_records", tools[0].Name)
	assert.Equal(t, "object", tools[0].InputSchema["type"])
}

func TestKeygenCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"keygen"})
	require.NoError(t, root.Execute())

	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		k, v, ok := strings.Cut(line, ":")
		require.True(t, ok, line)
		fields[k] = strings.TrimSpace(v)
	}
	assert.True(t, strings.HasPrefix(fields["key"], auth.KeyPrefix))
	assert.Equal(t, auth.KeyID(fields["key"]), fields["prefix"])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(fields["hash"]), []byte(fields["key"])))
}

func TestBuildAuthenticator(t *testing.T) {
	cfg := testConfig("https://api.example.com/v0")
	a := &app{cfg: cfg, logger: mustBuildLogger("error")}

	_, err := buildAuthenticator(a)
	require.Error(t, err, "no key source")

	_, hash, err := auth.GenerateKey()
	require.NoError(t, err)
	cfg.HTTPKeyHashes = []string{hash}
	authn, err := buildAuthenticator(a)
	require.NoError(t, err)
	assert.IsType(t, &auth.HashAuthenticator{}, authn)
}
