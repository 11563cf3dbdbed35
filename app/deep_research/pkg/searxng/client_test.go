package searxng

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search"
)

func TestClient_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		w.Write([]byte(`{"answers":["yes"],"results":[
			{"title":"A","url":"https://a.com","content":"ca","engine":"bing"},
			{"title":"B","url":"https://b.com","content":"cb"},
			{"title":"C","url":"https://c.com","content":"cc"}
		]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", 5)
	resp, err := c.Search(context.Background(), &search.Request{
		Query:      "q",
		MaxResults: 2,
		Locale:     search.Locale{HL: "en"},
	})
	require.NoError(t, err)

	require.Len(t, resp.Organic, 2)
	assert.Equal(t, "bing", resp.Organic[0].Source)
	assert.Equal(t, 2, resp.Organic[1].Position)
	require.NotNil(t, resp.AnswerBox)
	assert.Equal(t, "yes", resp.AnswerBox.Answer)
}

func TestClient_SearchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, 1).Search(context.Background(), &search.Request{Query: "q"})
	assert.Error(t, err)
}
