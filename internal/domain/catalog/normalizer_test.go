package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out))
	return out
}

func TestClassifyPayload(t *testing.T) {
	testCases := []struct {
		name     string
		payload  string
		expected Shape
	}{
		{"flat list", `{"list":[{"pid":"1"}]}`, ShapeFlatList},
		{"list wins over productList", `{"list":[],"productList":[{"pid":"1"}]}`, ShapeFlatList},
		{"nested content", `{"content":[{"productList":[{"pid":"1"}],"total":3}]}`, ShapeNestedContent},
		{"content list", `{"content":[{"pid":"1"},{"pid":"2"}]}`, ShapeContentList},
		{"empty content list", `{"content":[]}`, ShapeContentList},
		{"content map", `{"content":{"productList":[{"pid":"1"}],"pageNum":2}}`, ShapeContentMap},
		{"product list", `{"productList":[{"pid":"1"}]}`, ShapeProductList},
		{"numeric keyed list", `{"list":{"0":{"pid":"a"},"1":{"pid":"b"}}}`, ShapeFlatList},
		{"content map without productList", `{"content":{"foo":"bar"}}`, ShapeUnrecognized},
		{"empty object", `{}`, ShapeUnrecognized},
		{"scalar list", `{"list":"nope"}`, ShapeUnrecognized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyPayload(decode(t, tc.payload)))
		})
	}
}

func TestNormalize_Shapes(t *testing.T) {
	testCases := []struct {
		name        string
		payload     string
		expectedIDs []string
		expectTotal *int
	}{
		{"flat list", `{"list":[{"pid":"1"},{"pid":"2"}],"total":40}`, []string{"1", "2"}, nil},
		{"nested content", `{"content":[{"productList":[{"pid":"7"}],"total":12}]}`, []string{"7"}, intPtr(12)},
		{"content list", `{"content":[{"pid":"3"},"junk",{"pid":"4"}]}`, []string{"3", "4"}, nil},
		{"content map", `{"content":{"productList":[{"pid":"5"}],"total":"9"}}`, []string{"5"}, intPtr(9)},
		{"product list", `{"productList":[{"pid":"6"}]}`, []string{"6"}, nil},
		{"numeric keyed order", `{"productList":{"10":{"pid":"c"},"2":{"pid":"b"},"01":{"pid":"a"}}}`, []string{"a", "b", "c"}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Act
			meta, recs := Normalize(decode(t, tc.payload))

			// Assert
			ids := make([]string, 0, len(recs))
			for _, rec := range recs {
				ids = append(ids, ExternalID(rec))
			}
			assert.Equal(t, tc.expectedIDs, ids)
			assert.Equal(t, tc.expectTotal, meta.Total())
		})
	}
}

func TestNormalize_Totality(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"list": nil},
		{"content": nil},
		{"content": []any{}},
		{"content": []any{nil, 1, "x"}},
		{"content": []any{map[string]any{"productList": "oops"}}},
		{"content": map[string]any{"productList": 42}},
		{"list": map[string]any{"a": 1}},
		{"productList": []any{[]any{[]any{}}}},
		{"content": map[string]any{"content": map[string]any{"content": []any{map[string]any{}}}}},
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, recs := Normalize(in)
			assert.NotNil(t, recs)
		})
	}
}

func TestNormalize_Scenario(t *testing.T) {
	// Arrange
	payload := decode(t, `{"content":[{"productList":[{"pid":"1","sellPrice":"9.99"},{"pid":"2","sellPrice":"19.99"}]}]}`)

	// Act
	_, raw := Normalize(payload)
	recs, skipped := ExtractRecords(raw)

	// Assert
	require.Len(t, recs, 2)
	assert.Zero(t, skipped)
	require.NotNil(t, recs[0].Price)
	require.NotNil(t, recs[1].Price)
	assert.Equal(t, "9.99", recs[0].Price.String())
	assert.Equal(t, "19.99", recs[1].Price.String())
	f, _ := recs[0].Price.Float64()
	assert.InDelta(t, 9.99, f, 1e-9)
}

func TestUnwrapDetail(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		id      string
		ok      bool
	}{
		{"plain", `{"pid":"P1","productNameEn":"Lamp"}`, "P1", true},
		{"data envelope", `{"data":{"pid":"P2"}}`, "P2", true},
		{"single list", `{"list":[{"pid":"P3"}]}`, "P3", true},
		{"empty", `{}`, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, ok := UnwrapDetail(decode(t, tc.payload))
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.id, ExternalID(rec))
			}
		})
	}
}

func TestPageMeta_Fallbacks(t *testing.T) {
	meta := PageMeta(decode(t, `{"pageNumber":3,"size":"50","totalRecords":120,"totalPage":"abc"}`))

	require.NotNil(t, meta.PageNum())
	assert.Equal(t, 3, *meta.PageNum())
	require.NotNil(t, meta.PageSize())
	assert.Equal(t, 50, *meta.PageSize())
	require.NotNil(t, meta.Total())
	assert.Equal(t, 120, *meta.Total())
	assert.Nil(t, meta.TotalPages())
}

func intPtr(n int) *int {
	return &n
}
