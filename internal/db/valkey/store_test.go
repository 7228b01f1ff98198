package valkey

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/recall/internal/db"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c, FlavorValkey)
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

	s := NewStoreForTest(c, FlavorValkey)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_Validation(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Error("expected error for missing addrs")
	}
	if _, err := NewStore(Config{Addrs: []string{"localhost:6379"}, Flavor: "memcached"}); err == nil {
		t.Error("expected error for unknown flavor")
	}
}

func TestLocation(t *testing.T) {
	got := location(FlavorRedis, []string{"a:6379", "b:6379"}, 2)
	if got != "redis://a:6379,b:6379/2" {
		t.Errorf("location = %q", got)
	}
}

// --- hash.go tests ---

func TestReplaceHashes_Transaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			var names []string
			for _, cmd := range cmds {
				names = append(names, cmd.Commands()[0])
			}
			want := []string{"MULTI", "DEL", "HSET", "DEL", "HSET", "EXEC"}
			if !slices.Equal(names, want) {
				t.Errorf("commands = %v, want %v", names, want)
			}
			if key := cmds[1].Commands()[1]; key != "k1" {
				t.Errorf("first DEL key = %q, want k1", key)
			}
			return []rueidis.RedisResult{
				mock.Result(mock.RedisString("OK")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisArray(
					mock.RedisInt64(1), mock.RedisInt64(2),
					mock.RedisInt64(0), mock.RedisInt64(2),
				)),
			}
		})

	s := NewStoreForTest(c, FlavorValkey)
	err := s.ReplaceHashes(context.Background(), []db.HashSetItem{
		{Key: "k1", Fields: map[string]string{"a": "1", "b": "2"}},
		{Key: "k2", Fields: map[string]string{"a": "3", "b": "4"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReplaceHashes_ExecAborted(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("OK")),
			mock.Result(mock.RedisString("QUEUED")),
			mock.Result(mock.RedisString("QUEUED")),
			mock.Result(mock.RedisNil()),
		})

	s := NewStoreForTest(c, FlavorValkey)
	err := s.ReplaceHashes(context.Background(), []db.HashSetItem{
		{Key: "k1", Fields: map[string]string{"a": "1"}},
	})
	if !errors.Is(err, db.ErrTxAborted) {
		t.Errorf("expected ErrTxAborted, got %v", err)
	}
}

func TestReplaceHashes_QueueError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("OK")),
			mock.Result(mock.RedisString("QUEUED")),
			mock.Result(mock.RedisError("OOM command not allowed")),
			mock.Result(mock.RedisError("EXECABORT Transaction discarded")),
		})

	s := NewStoreForTest(c, FlavorValkey)
	err := s.ReplaceHashes(context.Background(), []db.HashSetItem{
		{Key: "k1", Fields: map[string]string{"a": "1"}},
	})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpHSet {
		t.Fatalf("expected HSET db.Error, got %v", err)
	}
	if !strings.Contains(err.Error(), "OOM") {
		t.Errorf("error should carry the server message, got %v", err)
	}
}

func TestReplaceHashes_Empty(t *testing.T) {
	s := NewStoreForTest(nil, FlavorValkey)
	if err := s.ReplaceHashes(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c, FlavorValkey)
	if err := s.Del(context.Background(), "mykey"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScan_MultiplePages(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SCAN" && cmd[1] == "0"
			})).
			Return(mock.Result(mock.RedisArray(
				mock.RedisBlobString("17"),
				mock.RedisArray(mock.RedisString("key1"), mock.RedisString("key2")),
			))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SCAN" && cmd[1] == "17"
			})).
			Return(mock.Result(mock.RedisArray(
				mock.RedisBlobString("0"),
				mock.RedisArray(mock.RedisString("key3")),
			))),
	)

	s := NewStoreForTest(c, FlavorValkey)
	keys, err := s.Scan(context.Background(), "prefix:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %v", keys)
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := NewStoreForTest(c, FlavorValkey)
	data, err := s.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c, FlavorValkey)
	_, err := s.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "mykey", "myvalue", "EX", "60")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c, FlavorValkey)
	if err := s.SetWithTTL(context.Background(), "mykey", []byte("myvalue"), 60e9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go tests ---

func TestCreateIndex_Args(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	want := []string{
		"FT.CREATE", "recall:mem:idx", "ON", "HASH", "PREFIX", "1", "recall:mem:",
		"SCHEMA",
		"role", "TAG", "CASESENSITIVE",
		"char_count", "NUMERIC",
		"__vector", "AS", "vector", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32", "DIM", "4", "DISTANCE_METRIC", "COSINE", "M", "16", "EF_CONSTRUCTION", "200",
	}
	c.EXPECT().
		Do(gomock.Any(), mock.Match(want...)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c, FlavorValkey)
	idx, err := db.NewIndex("recall:mem:idx").
		Prefix("recall:mem:").
		Tag("role").
		Numeric("char_count").
		VectorHNSW("__vector", 4, db.DistanceCosine, 16, 200).As("vector").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_TagSeparator(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	want := []string{
		"FT.CREATE", "recall:mem:idx", "ON", "HASH", "PREFIX", "1", "recall:mem:",
		"SCHEMA",
		"source", "TAG", "SEPARATOR", "\x1f", "CASESENSITIVE",
		"date", "TAG",
	}
	c.EXPECT().
		Do(gomock.Any(), mock.Match(want...)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c, FlavorValkey)
	idx, err := db.NewIndex("recall:mem:idx").
		Prefix("recall:mem:").
		TagWithOpts("source", "\x1f", true).
		TagWithOpts("date", "", false).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c, FlavorValkey)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
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
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "test:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c, FlavorValkey)
	err := s.DropIndex(context.Background(), "test:idx")
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name  string
		reply rueidis.RedisResult
		want  bool
	}{
		{"exists", mock.Result(mock.RedisArray(mock.RedisString("index_name"))), true},
		{"redis unknown", mock.Result(mock.RedisError("Unknown index name")), false},
		{"valkey not found", mock.Result(mock.RedisError("Index with name 'x' not found")), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).Return(tc.reply)

			s := NewStoreForTest(c, FlavorValkey)
			got, err := s.IndexExists(context.Background(), "test:idx")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("IndexExists = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildCreateArgs_Errors(t *testing.T) {
	if _, err := buildCreateArgs(&db.IndexDefinition{}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := buildCreateArgs(&db.IndexDefinition{Name: "x"}); err == nil {
		t.Error("expected error for no fields")
	}
	def := &db.IndexDefinition{Name: "x", Fields: []db.IndexField{{Name: "v", Type: db.IndexFieldVector}}}
	if _, err := buildCreateArgs(def); err == nil {
		t.Error("expected error for zero DIM")
	}
}

// --- search.go tests ---

func knnReply() rueidis.RedisResult {
	return mock.Result(mock.RedisArray(
		mock.RedisInt64(2),
		mock.RedisString("recall:mem:aaa"),
		mock.RedisArray(
			mock.RedisString("__content"), mock.RedisString("first"),
			mock.RedisString("role"), mock.RedisString("human"),
			mock.RedisString("__vector_score"), mock.RedisString("0.12"),
		),
		mock.RedisString("recall:mem:bbb"),
		mock.RedisArray(
			mock.RedisString("__content"), mock.RedisString("second"),
		),
	))
}

func TestSearchKNN_Valkey(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	p := filter.And(filter.Eq("role", "human"), filter.Eq("source", "redwood"))

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "FT.SEARCH" || cmd[1] != "recall:mem:idx" {
				return false
			}
			if cmd[2] != "(@role:{human} @source:{redwood})=>[KNN 5 @vector $BLOB]" {
				t.Errorf("query = %q", cmd[2])
			}
			if slices.Contains(cmd, "SORTBY") {
				t.Error("valkey must not send SORTBY")
			}
			i := slices.Index(cmd, "LIMIT")
			return i > 0 && cmd[i+1] == "0" && cmd[i+2] == "5" && slices.Contains(cmd, "__vector_score")
		})).
		Return(knnReply())

	s := NewStoreForTest(c, FlavorValkey)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "recall:mem:idx",
		Filter:       &p,
		Vector:       []float32{0.1, 0.2},
		K:            5,
		ReturnFields: []string{"__content", "role"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	first := res.Entries[0]
	if first.Distance == nil || *first.Distance != 0.12 {
		t.Errorf("distance = %v, want 0.12", first.Distance)
	}
	if _, ok := first.Fields["__vector_score"]; ok {
		t.Error("score field should be removed from fields")
	}
	if first.Fields["role"] != "human" {
		t.Errorf("fields = %v", first.Fields)
	}
	if res.Entries[1].Distance != nil {
		t.Errorf("missing score should leave Distance nil, got %v", *res.Entries[1].Distance)
	}
}

func TestSearchKNN_RedisSortsAndNoFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[2] != "*=>[KNN 3 @vector $BLOB]" {
				t.Errorf("query = %q", cmd[2])
			}
			i := slices.Index(cmd, "SORTBY")
			return i > 0 && cmd[i+1] == "__vector_score" && cmd[i+2] == "ASC"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c, FlavorRedis)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "recall:mem:idx",
		Vector:    []float32{1},
		K:         3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(res.Entries))
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := NewStoreForTest(nil, FlavorValkey)
	ctx := context.Background()
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{1}, K: 1}); err == nil {
		t.Error("expected error for missing index")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "i", K: 1}); err == nil {
		t.Error("expected error for missing vector")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "i", Vector: []float32{1}}); err == nil {
		t.Error("expected error for zero k")
	}
}

func TestSearchKNN_ServerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisError("Unknown index name")))

	s := NewStoreForTest(c, FlavorValkey)
	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{IndexName: "i", Vector: []float32{1}, K: 1})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpSearch {
		t.Errorf("expected FT.SEARCH db.Error, got %v", err)
	}
}

func TestCount_ValkeyScans(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && slices.Contains(cmd, "recall:mem:*")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisBlobString("0"),
			mock.RedisArray(mock.RedisString("recall:mem:a"), mock.RedisString("recall:mem:b")),
		)))

	s := NewStoreForTest(c, FlavorValkey)
	n, err := s.Count(context.Background(), "recall:mem:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestCount_RedisUsesSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "recall:mem:idx", "*", "LIMIT", "0", "0")).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	s := NewStoreForTest(c, FlavorRedis)
	n, err := s.Count(context.Background(), "recall:mem:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("Count = %d, want 42", n)
	}
}

func TestBuildFilter(t *testing.T) {
	in := filter.In("date", "2026-02-08", "2026-02-07")
	eq := filter.Eq("role", "human")
	and := filter.And(in, eq)
	spaced := filter.Eq("source", "team chat")

	tests := []struct {
		name string
		p    *filter.Predicate
		want string
	}{
		{"nil", nil, ""},
		{"eq", &eq, "@role:{human}"},
		{"in escapes dashes", &in, `@date:{2026\-02\-08 | 2026\-02\-07}`},
		{"and", &and, `@date:{2026\-02\-08 | 2026\-02\-07} @role:{human}`},
		{"space escaped", &spaced, `@source:{team\ chat}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildFilter(tc.p); got != tc.want {
				t.Errorf("buildFilter = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIndexToKeyPrefix(t *testing.T) {
	if got := indexToKeyPrefix("recall:mem:idx"); got != "recall:mem:" {
		t.Errorf("got %q", got)
	}
	if got := indexToKeyPrefix("plain"); got != "plain:" {
		t.Errorf("got %q", got)
	}
}
