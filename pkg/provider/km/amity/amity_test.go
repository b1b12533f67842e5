package amity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/AmityCo/answercore/pkg/provider/km"
	"github.com/AmityCo/answercore/pkg/types"
)

// fakeKM answers each query with hits keyed off the query content so tests
// can verify fan-out and merging.
func fakeKM(t *testing.T, responses map[string][]types.KMHit) (*httptest.Server, *[]searchRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q, want bearer token", got)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		hits := responses[req.Content]
		json.NewEncoder(w).Encode(types.KMResult{Data: hits, Total: len(hits)})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func hit(id string, reranker float64) types.KMHit {
	return types.KMHit{
		DocumentID:    id,
		Document:      types.Document{ID: id, Content: "doc " + id},
		Score:         reranker / 2,
		RerankerScore: reranker,
	}
}

func TestSearchFansOutAndMerges(t *testing.T) {
	t.Parallel()

	srv, seen := fakeKM(t, map[string][]types.KMHit{
		"where is the pool": {hit("a", 0.9), hit("b", 0.5)},
		"pool":              {hit("a", 0.7), hit("c", 0.8)},
		"swimming":          {hit("d", 0.2)},
	})

	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got, err := c.Search(context.Background(), km.Query{
		Text:        "where is the pool",
		Keywords:    []string{"pool", "swimming"},
		KnowledgeID: "42",
		Language:    "en-US",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(*seen) != 3 {
		t.Fatalf("upstream queries = %d, want 3", len(*seen))
	}
	for _, req := range *seen {
		if req.KnowledgeID != 42 {
			t.Errorf("knowledgeId = %d, want 42", req.KnowledgeID)
		}
		if req.Language != "en-US" {
			t.Errorf("language = %q, want en-US", req.Language)
		}
	}

	// a de-duplicated at its best score, sorted descending: a(0.9) c(0.8) b(0.5) d(0.2).
	wantOrder := []string{"a", "c", "b", "d"}
	if got.Total != len(wantOrder) || len(got.Data) != len(wantOrder) {
		t.Fatalf("got %d hits, want %d", len(got.Data), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got.Data[i].DocumentID != id {
			t.Errorf("hit %d = %q, want %q", i, got.Data[i].DocumentID, id)
		}
	}
	if got.Data[0].RerankerScore != 0.9 {
		t.Errorf("dedupe kept score %v, want best score 0.9", got.Data[0].RerankerScore)
	}
}

func TestSearchCapsResults(t *testing.T) {
	t.Parallel()

	hits := make([]types.KMHit, 15)
	for i := range hits {
		hits[i] = hit(string(rune('a'+i)), float64(15-i))
	}
	srv, _ := fakeKM(t, map[string][]types.KMHit{"q": hits})

	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Search(context.Background(), km.Query{Text: "q", KnowledgeID: "1", Language: "en-US"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got.Data) != km.DefaultMaxResults {
		t.Fatalf("got %d hits, want cap %d", len(got.Data), km.DefaultMaxResults)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	c, err := New("http://unused.invalid", "tok")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Search(context.Background(), km.Query{KnowledgeID: "1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got.Data) != 0 || got.Total != 0 {
		t.Fatalf("got %+v, want empty result without upstream calls", got)
	}
}

func TestSearchNonNumericKnowledgeID(t *testing.T) {
	t.Parallel()

	srv, _ := fakeKM(t, nil)
	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Search(context.Background(), km.Query{Text: "q", KnowledgeID: "not-a-number"}); err == nil {
		t.Fatal("expected error for non-numeric knowledge id")
	}
}
