package kdocs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mingfai/stockledger/internal/domain"
)

// newScriptServer returns a test server that replies to each api name with a
// canned script result, wrapped in the AirScript response envelope.
func newScriptServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-token", r.Header.Get("AirScript-Token"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var req struct {
			Context struct {
				Argv map[string]any `json:"argv"`
			} `json:"Context"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		api, _ := req.Context.Argv["api"].(string)
		result, ok := results[api]
		if !ok {
			http.Error(w, "unknown api", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"result":` + result + `}}`))
	}))
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{Endpoint: srv.URL, Token: "secret-token"})
}

func TestClient_Version_StringOrNumber(t *testing.T) {
	for name, result := range map[string]string{
		"string": `"v42"`,
		"number": `42`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newScriptServer(t, map[string]string{"getVer": result})
			defer srv.Close()

			tok, err := newTestClient(srv).Version(context.Background())
			require.NoError(t, err)
			if name == "string" {
				assert.Equal(t, domain.VersionToken("v42"), tok)
			} else {
				assert.Equal(t, domain.VersionToken("42"), tok)
			}
		})
	}
}

func TestClient_AllRecords(t *testing.T) {
	srv := newScriptServer(t, map[string]string{
		"getData": `[
			{"dh":"RKD20240101001","dw":"Acme Supply","qd":[["Widget","box",2,10],["Bolt",null,0,5]]},
			{"dh":"CKD20240102001","dw":"North Retail","qd":[["Widget","box",1,7]]}
		]`,
	})
	defer srv.Close()

	records, err := newTestClient(srv).AllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "RKD20240101001", records[0].ID)
	assert.Equal(t, "Acme Supply", records[0].Counterparty)
	require.Len(t, records[0].Lines, 2)
	assert.Equal(t, domain.LineItem{Product: "Widget", Unit: "box", Quantity: 2, Amount: 10}, records[0].Lines[0])
	// Null unit and zero quantity survive as empty string / zero.
	assert.Equal(t, domain.LineItem{Product: "Bolt", Unit: "", Quantity: 0, Amount: 5}, records[0].Lines[1])
}

func TestClient_AllRecords_MissingOrderNumber(t *testing.T) {
	srv := newScriptServer(t, map[string]string{
		"getData": `[{"dw":"Acme Supply","qd":[]}]`,
	})
	defer srv.Close()

	_, err := newTestClient(srv).AllRecords(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
}

func TestClient_Login(t *testing.T) {
	srv := newScriptServer(t, map[string]string{"login": `false`})
	defer srv.Close()

	err := newTestClient(srv).Login(context.Background(), "user", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClient_Submit_EncodesPositionalTriple(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Context struct {
				Argv map[string]any `json:"argv"`
			} `json:"Context"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = req.Context.Argv
		_, _ = w.Write([]byte(`{"data":{"result":true}}`))
	}))
	defer srv.Close()

	record := domain.OrderRecord{
		ID:           "RKD20240101003",
		Counterparty: "Acme Supply",
		Lines:        []domain.LineItem{{Product: "Widget", Unit: "box", Quantity: 2, Amount: 10}},
	}
	require.NoError(t, newTestClient(srv).Submit(context.Background(), record))

	require.Equal(t, "update", got["api"])
	data, ok := got["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 3)
	assert.Equal(t, "RKD20240101003", data[0])
	assert.Equal(t, "Acme Supply", data[1])
	lines, ok := data[2].([]any)
	require.True(t, ok)
	require.Len(t, lines, 1)
	assert.Equal(t, []any{"Widget", "box", 2.0, 10.0}, lines[0])
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Version(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}
