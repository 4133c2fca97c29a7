package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/money"
)

const schemaPath = "../../configs/signal_proposal.schema.json"

func newInboxFixture(t *testing.T) (*Inbox, string, *[]string) {
	t.Helper()
	dir := t.TempDir()
	var quarantined []string
	in, err := NewInbox("alpha-inbox", dir, schemaPath, func(file, reason string) {
		quarantined = append(quarantined, file)
	})
	require.NoError(t, err)
	return in, dir, &quarantined
}

func dropFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInboxReadsValidProposals(t *testing.T) {
	in, dir, quarantined := newInboxFixture(t)
	dropFile(t, dir, "b.json", `{"signal_id":"ext-2026-09-01-msft","symbol":"msft","side":"sell","confidence":0.4,"limit_price_usd":402.10}`)
	dropFile(t, dir, "a.json", `{"symbol":"AAPL","side":"BUY","confidence":0.9,"rationale":"earnings drift","limit_price_usd":171.25}`)
	dropFile(t, dir, "notes.txt", "ignored")

	proposals, err := in.GenerateSignals(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Empty(t, *quarantined)

	// Lexicographic intake order: a.json first.
	assert.Equal(t, "AAPL", proposals[0].Symbol)
	assert.Equal(t, "BUY", proposals[0].Side)
	assert.Equal(t, money.Cents(17125), proposals[0].LimitPriceCents)
	assert.Empty(t, proposals[0].SignalID)

	assert.Equal(t, "MSFT", proposals[1].Symbol)
	assert.Equal(t, "SELL", proposals[1].Side)
	assert.Equal(t, "ext-2026-09-01-msft", proposals[1].SignalID)

	// Consumed files move to processed/ so a rerun sees an empty inbox.
	for _, name := range []string{"a.json", "b.json"} {
		assert.FileExists(t, filepath.Join(dir, "processed", name))
		assert.NoFileExists(t, filepath.Join(dir, name))
	}

	again, err := in.GenerateSignals(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestInboxQuarantinesInvalidFiles(t *testing.T) {
	in, dir, quarantined := newInboxFixture(t)
	dropFile(t, dir, "bad-schema.json", `{"symbol":"AAPL","side":"HOLD","confidence":0.9,"limit_price_usd":171.25}`)
	dropFile(t, dir, "bad-syntax.json", `{"symbol": "AAPL",`)
	dropFile(t, dir, "extra-field.json", `{"symbol":"AAPL","side":"BUY","confidence":0.9,"limit_price_usd":171.25,"leverage":50}`)
	dropFile(t, dir, "good.json", `{"symbol":"NVDA","side":"BUY","confidence":0.7,"limit_price_usd":905.00}`)

	proposals, err := in.GenerateSignals(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "NVDA", proposals[0].Symbol)

	assert.ElementsMatch(t, []string{"bad-schema.json", "bad-syntax.json", "extra-field.json"}, *quarantined)
	for _, name := range *quarantined {
		assert.FileExists(t, filepath.Join(dir, "quarantine", name))
	}
}

func TestInboxMissingDirIsEmpty(t *testing.T) {
	in, err := NewInbox("alpha-inbox", filepath.Join(t.TempDir(), "absent"), schemaPath, nil)
	require.NoError(t, err)

	proposals, err := in.GenerateSignals(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestInboxRejectsBadSchemaPath(t *testing.T) {
	_, err := NewInbox("alpha-inbox", t.TempDir(), "does-not-exist.json", nil)
	assert.Error(t, err)
}
