package aggregate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortar/lib/errco"
	"mortar/lib/model"
)

func Test_Compose(t *testing.T) {
	docs := []*model.StatusDocument{
		{
			Version: model.StatusVersion{Name: "1.16.5", Protocol: 754},
			Players: model.StatusPlayers{Max: 20, Online: 2, Sample: []model.PlayerSample{
				{Name: "Alice", ID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20"},
				{Name: "Bob"},
			}},
		},
		// no version name: skipped
		{Players: model.StatusPlayers{Sample: []model.PlayerSample{{Name: "Ghost", ID: "x"}}}},
		// no sample
		{Version: model.StatusVersion{Name: "1.18.2", Protocol: 758}, Players: model.StatusPlayers{Max: 10, Online: 3}},
		nil,
		{
			Version: model.StatusVersion{Name: "1.18.2", Protocol: 758},
			Players: model.StatusPlayers{Sample: []model.PlayerSample{{Name: "Carol", ID: "c"}}},
		},
	}

	doc := Compose(docs, 762, "data:image/png;base64,AAAA")

	assert.Equal(t, model.StatusVersion{Name: "mortar", Protocol: 762}, doc.Version)
	assert.Equal(t, 3, doc.Players.Max)
	assert.Equal(t, 3, doc.Players.Online)
	assert.Equal(t, []model.PlayerSample{
		{Name: "Alice -- 1.16.5", ID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20"},
		{Name: "Bob -- 1.16.5", ID: OfflineUUID("Bob")},
		{Name: "Carol -- 1.18.2", ID: "c"},
	}, doc.Players.Sample)
	assert.True(t, doc.EnforcesSecureChat)
	assert.Equal(t, "data:image/png;base64,AAAA", doc.Favicon)

	var desc []json.RawMessage
	require.NoError(t, json.Unmarshal(doc.Description, &desc))
	require.Len(t, desc, 4)
	assert.JSONEq(t, `""`, string(desc[0]))
	assert.JSONEq(t, `{"text":"Mortar","bold":true,"color":"aqua"}`, string(desc[1]))

	// source documents are not modified
	assert.Equal(t, "Alice", docs[0].Players.Sample[0].Name)
}

func Test_ComposeEmpty(t *testing.T) {
	doc := Compose(nil, 754, "")

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	// an empty sample is an empty list, not null
	assert.Contains(t, string(data), `"sample":[]`)
	assert.Equal(t, 0, doc.Players.Online)
}

func Test_OfflineUUID(t *testing.T) {
	assert.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f", OfflineUUID("Notch"))
	assert.Equal(t, OfflineUUID("Bob"), OfflineUUID("Bob"))
	assert.NotEqual(t, OfflineUUID("Bob"), OfflineUUID("bob"))
}

func Test_OffsetStore(t *testing.T) {
	s := NewOffsetStore()
	assert.JSONEq(t, `{}`, string(s.Get()))

	doc := Compose(nil, 754, "")

	// empty offset: document unchanged
	data, logMrt := s.Merge(doc)
	require.Nil(t, logMrt)
	plain, _ := json.Marshal(doc)
	assert.Equal(t, plain, data)

	require.Nil(t, s.Set([]byte(`{"players":{"max":100,"online":42},"test":"hello world!"}`)))
	assert.Equal(t, 2, s.Len())

	data, logMrt = s.Merge(doc)
	require.Nil(t, logMrt)

	var merged map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &merged))
	assert.JSONEq(t, `{"max":100,"online":42}`, string(merged["players"]))
	assert.JSONEq(t, `"hello world!"`, string(merged["test"]))
	assert.JSONEq(t, `{"name":"mortar","protocol":754}`, string(merged["version"]))

	// put replaces the whole object
	require.Nil(t, s.Set([]byte(`{"favicon":""}`)))
	assert.JSONEq(t, `{"favicon":""}`, string(s.Get()))

	for _, invalid := range []string{`[1,2]`, `"text"`, `null`, `{`} {
		logMrt := s.Set([]byte(invalid))
		assert.True(t, logMrt.Is(errco.ERROR_OFFSET_INVALID), invalid)
	}
	assert.JSONEq(t, `{"favicon":""}`, string(s.Get()))
}

func Test_FetchObject(t *testing.T) {
	const composite = `{"version":{"name":"mortar","protocol":762},"players":{"max":1,"online":1,"sample":[{"name":"Alice -- 1.16.5","id":"x"}]}}`

	var gotQuery, gotForwarded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("protocolVersion")
		gotForwarded = r.Header.Get("X-Forwarded-For")
		w.Write([]byte(composite))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/serverlist", "", time.Second)
	data, logMrt := f.Fetch(context.Background(), 762, "10.0.0.7")
	require.Nil(t, logMrt)

	assert.Equal(t, composite, string(data))
	assert.Equal(t, "762", gotQuery)
	assert.Equal(t, "10.0.0.7", gotForwarded)
}

func Test_FetchList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"version":{"name":"1.16.5","protocol":754},"players":{"max":20,"online":1,"sample":[{"name":"Alice","id":"a"}]}}]`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "data:image/png;base64,AAAA", time.Second)
	data, logMrt := f.Fetch(context.Background(), 754, "")
	require.Nil(t, logMrt)

	doc := &model.StatusDocument{}
	require.NoError(t, json.Unmarshal(data, doc))
	assert.Equal(t, "mortar", doc.Version.Name)
	assert.Equal(t, []model.PlayerSample{{Name: "Alice -- 1.16.5", ID: "a"}}, doc.Players.Sample)
	assert.Equal(t, "data:image/png;base64,AAAA", doc.Favicon)
}

func Test_FetchFallback(t *testing.T) {
	type test struct {
		title   string
		handler http.HandlerFunc
	}

	tests := []test{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"not json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("hello")) }},
		{"broken object", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"version":`)) }},
		{"slow", func(w http.ResponseWriter, r *http.Request) { time.Sleep(500 * time.Millisecond) }},
	}

	for _, test := range tests {
		srv := httptest.NewServer(test.handler)

		f := NewFetcher(srv.URL, "", 100*time.Millisecond)
		data, logMrt := f.Fetch(context.Background(), 754, "")
		require.NotNil(t, logMrt, test.title)
		assert.Equal(t, errco.ERROR_AGGREGATION_FETCH, logMrt.Cod, test.title)

		doc := &model.StatusDocument{}
		require.NoError(t, json.Unmarshal(data, doc), test.title)
		assert.Equal(t, "mortar", doc.Version.Name, test.title)
		assert.Equal(t, int32(754), doc.Version.Protocol, test.title)
		assert.Empty(t, doc.Players.Sample, test.title)

		srv.Close()
	}
}
