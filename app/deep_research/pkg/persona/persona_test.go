package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{"research", "doctor", "market", "financial", "developer", "writer", "analyst"}, r.IDs())
	assert.Same(t, r, Default())

	for _, p := range r.List() {
		assert.NotEmpty(t, p.Name, p.ID)
		assert.NotEmpty(t, p.Keywords, p.ID)
		assert.NotEmpty(t, p.FocusTerms, p.ID)
		assert.NotEmpty(t, p.SpecialistKeywords, p.ID)
	}
}

func TestGetAndFocusQuery(t *testing.T) {
	p, ok := Default().Get(" Doctor ")
	require.True(t, ok)
	assert.Equal(t, "doctor", p.ID)
	assert.Equal(t, "diabetes treatments medical research clinical study treatment", p.FocusQuery(" diabetes treatments "))

	_, ok = Default().Get("astrologer")
	assert.False(t, ok)

	assert.Equal(t, "q", Persona{}.FocusQuery("q"))
}

func TestResolve(t *testing.T) {
	got, err := Default().Resolve([]string{"market", "doctor", "MARKET"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "market", got[0].ID)
	assert.Equal(t, "doctor", got[1].ID)

	_, err = Default().Resolve([]string{"market", "astrologer"})
	assert.ErrorIs(t, err, ErrUnknownPersona)
	assert.Contains(t, err.Error(), "astrologer")
}

func TestMatch(t *testing.T) {
	got := Default().Match("Clinical treatment options and market trends for diabetes drugs")
	require.NotEmpty(t, got)
	assert.Equal(t, "doctor", got[0].ID)
	assert.Equal(t, "market", got[1].ID)

	assert.Empty(t, Default().Match("hello world"))
}

func TestListIsCopy(t *testing.T) {
	r := Default()
	list := r.List()
	list[0].Name = "changed"
	p, _ := r.Get(list[0].ID)
	assert.NotEqual(t, "changed", p.Name)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("- id: a\n- id: A\n"))
	assert.ErrorContains(t, err, "duplicate persona id")

	_, err = Parse([]byte("- name: nameless\n"))
	assert.ErrorContains(t, err, "persona id is empty")

	_, err = Parse([]byte("[]"))
	assert.Error(t, err)

	_, err = Parse([]byte("{not: [valid"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Same(t, Default(), r)

	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: legal\n  name: Legal Agent\n  focus_terms: law regulation\n"), 0o644))

	r, err = Load(path)
	require.NoError(t, err)
	p, ok := r.Get("legal")
	require.True(t, ok)
	assert.Equal(t, "legal", p.AnalysisType)
	assert.Equal(t, "contracts law regulation", p.FocusQuery("contracts"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
