package collection_test

import (
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already normalized", input: "acme_corp", want: "acme_corp"},
		{name: "uppercase", input: "AcmeCorp", want: "acmecorp"},
		{name: "spaces collapse", input: "Acme  Corp  Inc", want: "acme_corp_inc"},
		{name: "punctuation collapses", input: "Acme, Corp. & Sons!", want: "acme_corp_sons"},
		{name: "leading and trailing trimmed", input: "--Acme--", want: "acme"},
		{name: "digits kept", input: "tenant42", want: "tenant42"},
		{name: "unicode collapses", input: "café münchen", want: "caf_m_nchen"},
		{name: "empty", input: "", want: ""},
		{name: "only separators", input: "---", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collection.Normalize(tt.input))
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		label string
		kind  string
		dim   int
		want  string
	}{
		{name: "plain", label: "t1", kind: "docs", dim: 4, want: "tenant_t1_docs_4"},
		{name: "empty kind defaults", label: "t1", kind: "", dim: 768, want: "tenant_t1_docs_768"},
		{name: "kind normalizes to empty defaults", label: "t1", kind: "!!!", dim: 768, want: "tenant_t1_docs_768"},
		{name: "display name label", label: "Acme Corp", kind: "docs", dim: 1024, want: "tenant_acme_corp_docs_1024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collection.Name(tt.label, tt.kind, tt.dim)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestName_Deterministic(t *testing.T) {
	a, err := collection.Name("Acme Corp", "docs", 768)
	require.NoError(t, err)
	b, err := collection.Name("Acme Corp", "docs", 768)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestName_InvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -1, -768} {
		_, err := collection.Name("t1", "docs", dim)
		assert.ErrorIs(t, err, collection.ErrInvalidDimension)
	}
}

func TestLegacyName(t *testing.T) {
	assert.Equal(t, "tenant_t1_docs", collection.LegacyName("t1"))
	assert.Equal(t, "tenant_651f0c2a_docs", collection.LegacyName("651f0c2a"))
}

func TestCandidates_OrderAndDedup(t *testing.T) {
	cands, err := collection.Candidates("Acme Corp", "t1", "docs", 768)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "tenant_acme_corp_docs_768", cands[0].Name)
	assert.False(t, cands[0].Legacy)
	assert.Equal(t, "tenant_t1_docs", cands[1].Name)
	assert.True(t, cands[1].Legacy)
}

func TestCandidates_InvalidDimension(t *testing.T) {
	_, err := collection.Candidates("t1", "t1", "docs", 0)
	assert.ErrorIs(t, err, collection.ErrInvalidDimension)
}

func TestTenantPrefixes(t *testing.T) {
	// Label differs from id: both prefixes, id first.
	prefixes := collection.TenantPrefixes("Acme Corp", "t1")
	assert.Equal(t, []string{"tenant_t1_", "tenant_acme_corp_"}, prefixes)

	// Label resolution fell back to the raw id: one prefix.
	prefixes = collection.TenantPrefixes("t1", "t1")
	assert.Equal(t, []string{"tenant_t1_"}, prefixes)
}
