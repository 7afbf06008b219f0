package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"webswarm/internal/domain"
)

func TestFingerprint(t *testing.T) {
	a := domain.FeaturePoint{ID: "feature_0", Type: "form", Category: "auth", Description: "Login form", Text: "login", Priority: 1}
	b := a
	b.ID = "feature_9"
	b.Selector = "#login"
	b.Priority = 3
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "id, selector and priority must not affect the key")

	c := a
	c.Text = "sign in"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))

	// md5("form_auth_Login form_login")
	assert.Len(t, Fingerprint(a), 32)
}

func TestDeduplicateKeepsFirst(t *testing.T) {
	in := []domain.FeaturePoint{
		{ID: "f0", Type: "form", Category: "auth", Description: "Login form", Text: "login"},
		{ID: "f1", Type: "search", Category: "interaction", Description: "Search", Text: "search"},
		{ID: "f2", Type: "form", Category: "auth", Description: "Login form", Text: "login"},
	}
	res := Deduplicate(in)
	require.Len(t, res.Unique, 2)
	assert.Equal(t, "f0", res.Unique[0].ID)
	assert.Equal(t, "f1", res.Unique[1].ID)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, "f2", res.Duplicates[0].ID)
}

func TestDeduplicateEmpty(t *testing.T) {
	res := Deduplicate(nil)
	assert.Empty(t, res.Unique)
	assert.Empty(t, res.Duplicates)
}

type countingSink struct{ n int }

func (c *countingSink) AddDuplicateFeatures(n int) { c.n += n }

func TestDeduplicatorCountsDuplicates(t *testing.T) {
	sink := &countingSink{}
	d := New(nil, sink)
	f := domain.FeaturePoint{Type: "button", Category: "interaction", Description: "Buttons", Text: "button"}
	out := d.Deduplicate([]domain.FeaturePoint{f, f, f})
	assert.Len(t, out, 1)
	assert.Equal(t, 2, sink.n)

	// A second call on fresh input starts from an empty seen-set.
	out = d.Deduplicate([]domain.FeaturePoint{f})
	assert.Len(t, out, 1)
}

func featureGen() *rapid.Generator[domain.FeaturePoint] {
	return rapid.Custom(func(t *rapid.T) domain.FeaturePoint {
		return domain.FeaturePoint{
			ID:          fmt.Sprintf("feature_%d", rapid.IntRange(0, 50).Draw(t, "id")),
			Type:        domain.FeatureType(rapid.SampledFrom([]string{"form", "button", "link"}).Draw(t, "type")),
			Category:    domain.Category(rapid.SampledFrom([]string{"auth", "display"}).Draw(t, "category")),
			Description: rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "description"),
			Text:        rapid.SampledFrom([]string{"", "x"}).Draw(t, "text"),
			Priority:    rapid.IntRange(1, 3).Draw(t, "priority"),
		}
	})
}

func TestDeduplicateIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.SliceOf(featureGen()).Draw(rt, "features")
		once := Deduplicate(in).Unique
		twice := Deduplicate(once)
		if len(twice.Duplicates) != 0 {
			rt.Fatalf("second pass dropped %d features", len(twice.Duplicates))
		}
		if len(twice.Unique) != len(once) {
			rt.Fatalf("second pass changed size %d -> %d", len(once), len(twice.Unique))
		}
		for i := range once {
			if once[i] != twice.Unique[i] {
				rt.Fatalf("second pass changed element %d", i)
			}
		}
	})
}

func TestDeduplicateOrderIndependentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.SliceOf(featureGen()).Draw(rt, "features")
		perm := rapid.Permutation(in).Draw(rt, "perm")

		keys := func(fs []domain.FeaturePoint) map[string]int {
			out := make(map[string]int)
			for _, f := range fs {
				out[Fingerprint(f)]++
			}
			return out
		}
		a := keys(Deduplicate(in).Unique)
		b := keys(Deduplicate(perm).Unique)
		if len(a) != len(b) {
			rt.Fatalf("distinct keys differ: %d vs %d", len(a), len(b))
		}
		for k, n := range a {
			if n != 1 || b[k] != 1 {
				rt.Fatalf("key %s survives %d/%d times, want exactly once", k, n, b[k])
			}
		}
		if len(a) != len(keys(in)) {
			rt.Fatalf("every distinct key must survive")
		}
	})
}
