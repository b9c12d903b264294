package redis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c, FlavorRedis)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, FlavorRedis)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStoreForTest_DefaultFlavor(t *testing.T) {
	s := NewStoreForTest(nil, "")
	if s.Flavor() != FlavorRedis {
		t.Errorf("expected redis flavor, got %q", s.Flavor())
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

// --- hash.go tests ---

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "article:1"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c, FlavorRedis)
	err := s.HSet(context.Background(), "article:1", map[string]string{"embedding_model": "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, FlavorRedis)
	err := s.HSet(context.Background(), "article:1", map[string]string{"f": "v"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestHGetAll_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "article:1")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"title_it": mock.RedisString("Export"),
			"sector":   mock.RedisString("energy"),
		})))

	s := NewStoreForTest(c, FlavorRedis)
	m, err := s.HGetAll(context.Background(), "article:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["title_it"] != "Export" || m["sector"] != "energy" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestHGetAll_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "article:1")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, FlavorRedis)
	if _, err := s.HGetAll(context.Background(), "article:1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestHSetMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.Result(mock.RedisInt64(2)),
		})

	s := NewStoreForTest(c, FlavorRedis)
	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "article:1", Fields: map[string]string{"f1": "v1"}},
		{Key: "article:2", Fields: map[string]string{"f2": "v2"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSetMulti_PartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	s := NewStoreForTest(c, FlavorRedis)
	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "article:1", Fields: map[string]string{"f": "v"}},
		{Key: "article:2", Fields: map[string]string{"f": "v"}},
	})
	if err == nil || !strings.Contains(err.Error(), "article:2") {
		t.Fatalf("expected error naming article:2, got %v", err)
	}
}

func TestHSetMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil, FlavorRedis)
	if err := s.HSetMulti(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHGetAllMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"f": mock.RedisString("a"),
			})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"f": mock.RedisString("b"),
			})),
		})

	s := NewStoreForTest(c, FlavorRedis)
	results, err := s.HGetAllMulti(context.Background(), []string{"article:1", "article:2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0]["f"] != "a" || results[1]["f"] != "b" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestHGetAllMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil, FlavorRedis) // client not called
	results, err := s.HGetAllMulti(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil, got %v", results)
	}
}

func TestExists(t *testing.T) {
	for _, tc := range []struct {
		reply int64
		want  bool
	}{{1, true}, {0, false}} {
		ctrl := gomock.NewController(t)
		c := mock.NewClient(ctrl)

		c.EXPECT().
			Do(gomock.Any(), mock.Match("EXISTS", "article:1")).
			Return(mock.Result(mock.RedisInt64(tc.reply)))

		s := NewStoreForTest(c, FlavorRedis)
		exists, err := s.Exists(context.Background(), "article:1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exists != tc.want {
			t.Errorf("reply %d: expected %v", tc.reply, tc.want)
		}
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42), // cursor=42 means more
					mock.RedisArray(mock.RedisString("article:1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0), // cursor=0 means done
				mock.RedisArray(mock.RedisString("article:2")),
			))
		}).Times(2)

	s := NewStoreForTest(c, FlavorRedis)
	keys, err := s.Scan(context.Background(), "article:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "k")).
		Return(mock.Result(mock.RedisString("payload")))

	s := NewStoreForTest(c, FlavorRedis)
	data, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected value %q", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "k")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c, FlavorRedis)
	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == "k" && cmd[3] == "EX" && cmd[4] == "60"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c, FlavorRedis)
	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), 60e9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go tests ---

func articleIndexDef() *db.IndexDefinition {
	return db.NewIndex("article:idx").
		Prefix("article:").
		Text("title_it").
		Text("content_it").
		Tag("sector").
		Numeric("article_date").
		VectorHNSW("embedding", 4, db.DistanceCosine, 16, 200).
		MustBuild()
}

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var captured []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			captured = cmd
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c, FlavorRedis)
	if err := s.CreateIndex(context.Background(), articleIndexDef()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(captured, " ")
	assertContains(t, joined, "title_it TEXT")
	assertContains(t, joined, "embedding VECTOR HNSW")
}

func TestCreateIndex_ValkeySkipsTextFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var captured []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			captured = cmd
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c, FlavorValkey)
	if err := s.CreateIndex(context.Background(), articleIndexDef()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(captured, " ")
	if strings.Contains(joined, "TEXT") {
		t.Errorf("valkey schema must not contain TEXT fields: %s", joined)
	}
	assertContains(t, joined, "sector TAG")
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c, FlavorRedis)
	idx := &db.IndexDefinition{
		Name:   "article:idx",
		Fields: []db.IndexField{{Name: "sector", Type: db.IndexFieldTag}},
	}
	err := s.CreateIndex(context.Background(), idx)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "article:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c, FlavorRedis)
	err := s.DropIndex(context.Background(), "article:idx")
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("FT.INFO", "article:idx")).
			Return(mock.Result(mock.RedisArray(mock.RedisString("index_name")))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("FT.INFO", "article:idx")).
			Return(mock.Result(mock.RedisError("Unknown index name"))),
	)

	s := NewStoreForTest(c, FlavorRedis)
	if ok, err := s.IndexExists(context.Background(), "article:idx"); err != nil || !ok {
		t.Fatalf("expected exists, got %v %v", ok, err)
	}
	if ok, err := s.IndexExists(context.Background(), "article:idx"); err != nil || ok {
		t.Fatalf("expected absent, got %v %v", ok, err)
	}
}

func TestSupportsTextSearch(t *testing.T) {
	ctx := context.Background()
	if !NewStoreForTest(nil, FlavorRedis).SupportsTextSearch(ctx) {
		t.Error("redis should support text search")
	}
	if NewStoreForTest(nil, FlavorValkey).SupportsTextSearch(ctx) {
		t.Error("valkey should not support text search")
	}
}

func TestBuildCreateArgs_Validation(t *testing.T) {
	if _, err := buildCreateArgs(&db.IndexDefinition{}, true); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := buildCreateArgs(&db.IndexDefinition{Name: "x"}, true); err == nil {
		t.Error("expected error for no fields")
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	if _, err := buildFieldArgs(&db.IndexField{Type: db.IndexFieldTag}); err == nil {
		t.Error("expected error for empty field name")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "v", Type: db.IndexFieldVector}); err == nil {
		t.Error("expected error for zero DIM")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "x", Type: db.IndexFieldType(99)}); err == nil {
		t.Error("expected error for unknown type")
	}
}

// --- search.go tests ---

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var captured []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			captured = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2), // total
			mock.RedisString("article:2"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.4"),
				mock.RedisString("title_it"),
				mock.RedisString("secondo"),
			),
			mock.RedisString("article:1"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"), // distance 0.1 -> similarity 0.9
				mock.RedisString("title_it"),
				mock.RedisString("primo"),
			),
		)))

	s := NewStoreForTest(c, FlavorRedis)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "article:idx",
		Vector:       []float32{0.1, 0.2},
		K:            10,
		ReturnFields: []string{"title_it"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if result.Entries[0].Key != "article:1" {
		t.Errorf("expected most similar first, got %s", result.Entries[0].Key)
	}
	if result.Entries[0].Score < 0.89 || result.Entries[0].Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", result.Entries[0].Score)
	}
	if _, ok := result.Entries[0].Fields["__vector_score"]; ok {
		t.Error("__vector_score should be stripped from fields")
	}

	joined := strings.Join(captured, " ")
	assertContains(t, joined, "*=>[KNN 10 @embedding $BLOB]")
	assertContains(t, joined, "RETURN 2 title_it __vector_score")
	assertContains(t, joined, "LIMIT 0 10")
}

func TestSearchKNN_NegativeSimilarityClamped(t *testing.T) {
	raw := []rueidis.RedisMessage{
		mock.RedisInt64(1),
		mock.RedisString("article:1"),
		mock.RedisArray(mock.RedisString("__vector_score"), mock.RedisString("1.7")),
	}
	res, err := parseKNNResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries[0].Score != 0 {
		t.Errorf("expected 0, got %f", res.Entries[0].Score)
	}
}

func TestSearchKNN_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c, FlavorRedis)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "article:idx",
		Vector:    []float32{0.1},
		K:         10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(result.Entries))
	}
}

func TestSearchKNN_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, FlavorRedis)
	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "article:idx",
		Vector:    []float32{0.1},
		K:         10,
	})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}}); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestBuildKNNQuery_WithFilter(t *testing.T) {
	cond, _ := filter.NewMatch(filter.KeySector, "energy")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	got := buildKNNQuery(&db.KNNQuery{Filters: expr, K: 5, VectorField: "vec"})
	if got != "(@sector:{energy})=>[KNN 5 @vec $BLOB]" {
		t.Errorf("unexpected query: %q", got)
	}
}

func TestSearchText_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var captured []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			captured = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("article:1"),
			mock.RedisString("3.5"),
			mock.RedisArray(
				mock.RedisString("title_it"),
				mock.RedisString("energia rinnovabile"),
			),
		)))

	s := NewStoreForTest(c, FlavorRedis)
	result, err := s.SearchText(context.Background(), &db.TextQuery{
		IndexName:    "article:idx",
		Fields:       []string{"title_it", "content_it"},
		Query:        "energia",
		MaxEdits:     1,
		PrefixLength: 2,
		TopK:         20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || result.Entries[0].Score != 3.5 {
		t.Fatalf("unexpected result: %+v", result)
	}

	joined := strings.Join(captured, " ")
	assertContains(t, joined, "@title_it|content_it:(%energia%)")
	assertContains(t, joined, "WITHSCORES")
	assertContains(t, joined, "LIMIT 0 20")
}

func TestSearchText_ValkeyUnsupported(t *testing.T) {
	s := NewStoreForTest(nil, FlavorValkey)
	_, err := s.SearchText(context.Background(), &db.TextQuery{IndexName: "idx", Query: "x", TopK: 1})
	if !errors.Is(err, db.ErrTextSearchUnsupported) {
		t.Errorf("expected ErrTextSearchUnsupported, got %v", err)
	}
}

func TestSearchText_NoTerms(t *testing.T) {
	s := NewStoreForTest(nil, FlavorRedis) // client not called
	res, err := s.SearchText(context.Background(), &db.TextQuery{IndexName: "idx", Query: " -- ", TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(res.Entries))
	}
}

func TestSearchText_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchText(ctx, &db.TextQuery{Query: "test", TopK: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchText(ctx, &db.TextQuery{IndexName: "idx", Query: "test"}); err == nil {
		t.Error("expected error for topK=0")
	}
}

func TestBuildTextQuery(t *testing.T) {
	sector, _ := filter.NewMatch(filter.KeySector, "energy")
	expr, _ := filter.NewExpression([]filter.Condition{sector}, nil, nil)

	tests := []struct {
		name string
		q    db.TextQuery
		want string
	}{
		{
			name: "short terms stay exact",
			q:    db.TextQuery{Query: "Gas e petrolio", MaxEdits: 1, PrefixLength: 3},
			want: "(gas|e|%petrolio%)",
		},
		{
			name: "no fuzziness",
			q:    db.TextQuery{Query: "export", PrefixLength: 2},
			want: "(export)",
		},
		{
			name: "edits capped",
			q:    db.TextQuery{Query: "export", MaxEdits: 5},
			want: "(%%%export%%%)",
		},
		{
			name: "punctuation stripped",
			q:    db.TextQuery{Query: `"Made-in" @italy!`, Fields: []string{"title_it"}},
			want: "@title_it:(made|in|italy)",
		},
		{
			name: "filter prefix",
			q:    db.TextQuery{Query: "vino", Filters: expr},
			want: "@sector:{energy} (vino)",
		},
		{
			name: "empty",
			q:    db.TextQuery{Query: "  ?! "},
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildTextQuery(&tc.q); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSearchCount_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	s := NewStoreForTest(c, FlavorRedis)
	count, err := s.SearchCount(context.Background(), "article:idx", "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Errorf("expected 42, got %d", count)
	}
}

func TestSearchCount_ValkeyScanFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && strings.Contains(strings.Join(cmd, " "), "article:*")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(mock.RedisString("article:1"), mock.RedisString("article:2")),
		)))

	s := NewStoreForTest(c, FlavorValkey)
	count, err := s.SearchCount(context.Background(), "article:idx", "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestIndexToKeyPrefix(t *testing.T) {
	tests := []struct{ input, want string }{
		{"article:idx", "article:"},
		{"articles", "articles:"},
	}
	for _, tc := range tests {
		if got := indexToKeyPrefix(tc.input); got != tc.want {
			t.Errorf("indexToKeyPrefix(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// --- filter building ---

func TestBuildFilter_Empty(t *testing.T) {
	if got := buildFilter(filter.Expression{}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestBuildFilter_Combined(t *testing.T) {
	sector, _ := filter.NewMatch(filter.KeySector, "food & beverage")
	status, _ := filter.NewMatch(filter.KeyStatus, "DISCARDED")
	src1, _ := filter.NewMatch(filter.KeySource, "ansa")
	src2, _ := filter.NewMatch(filter.KeySource, "ice")
	expr, _ := filter.NewExpression(
		[]filter.Condition{sector},
		[]filter.Condition{src1, src2},
		[]filter.Condition{status},
	)

	got := buildFilter(expr)
	want := `@sector:{food\ \&\ beverage} (@source:{ansa} | @source:{ice}) -@status:{DISCARDED}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildNumericFilter(t *testing.T) {
	from := 1714979289.0
	to := 1714979300.0
	rng, _ := filter.NewRangeFilter(nil, &from, &to, nil)
	got := buildNumericFilter(filter.KeyArticleDate, rng)
	if got != `@article_date:[1714979289 (1714979300]` {
		t.Errorf("unexpected filter: %q", got)
	}

	gt := 5.0
	rng, _ = filter.NewRangeFilter(&gt, nil, nil, nil)
	if got := buildNumericFilter("n", rng); got != `@n:[(5 +inf]` {
		t.Errorf("unexpected filter: %q", got)
	}
}

// --- helpers ---

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

func assertContains(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Errorf("expected %q to contain %q", s, sub)
	}
}
