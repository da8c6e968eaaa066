package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/bulkgen/internal/models"
)

func writeEnvelope(w http.ResponseWriter, status int, success bool, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": success, "data": data})
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/api/nonces", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{
			"generation": "gen-nonce",
			"export":     "exp-nonce",
			"import":     "imp-nonce",
			"delete":     "del-nonce",
		})
	})
	mux.HandleFunc("/api/ajax/generate_orders_batch", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.FormValue("nonce") != "gen-nonce" {
			writeEnvelope(w, http.StatusForbidden, false, map[string]string{"message": "invalid nonce"})
			return
		}
		assert.Equal(t, "3", r.FormValue("batch_number"))
		writeEnvelope(w, http.StatusOK, true, map[string]int{"success": 9, "failed": 1})
	})
	mux.HandleFunc("/api/ajax/generate_products_batch", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, false, map[string]string{"message": "generate_products: store unavailable"})
	})
	mux.HandleFunc("/api/ajax/get_counts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/ajax/import_batch", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "imp-nonce", r.FormValue("nonce"))
		assert.Equal(t, "order", r.FormValue("kind"))
		file, header, err := r.FormFile("csv_file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "orders.csv", header.Filename)
		assert.Equal(t, "Order ID\n1001\n", string(content))
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{
			"processed": 1, "successful": 1, "total_records": 1,
			"is_complete": true, "import_session": "wc_bulk_import_x",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loggedInClient(t *testing.T, srv *httptest.Server) *HTTPClient {
	t.Helper()
	c := NewHTTPClient(srv.URL+"/", srv.Client(), zerolog.Nop())
	token, err := c.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok", token)
	return c
}

func TestHTTPClientGenerateBatch(t *testing.T) {
	c := loggedInClient(t, newTestServer(t))

	res, err := c.GenerateBatch(context.Background(), models.RecordOrder, 10, GenerateOptions{BatchNumber: 3})
	require.NoError(t, err)
	assert.Equal(t, 9, res.Success)
	assert.Equal(t, 1, res.Failed)
}

func TestHTTPClientLoginRejected(t *testing.T) {
	srv := newTestServer(t)
	c := NewHTTPClient(srv.URL, srv.Client(), zerolog.Nop())

	_, err := c.Login(context.Background(), "admin", "wrong")

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Contains(t, err.Error(), "401")
}

func TestHTTPClientExecutorError(t *testing.T) {
	c := loggedInClient(t, newTestServer(t))

	_, err := c.GenerateBatch(context.Background(), models.RecordProduct, 5, GenerateOptions{})

	var execErr *ExecutorError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, http.StatusOK, execErr.Status)
	assert.Contains(t, execErr.Message, "store unavailable")
}

func TestHTTPClientMissingNonce(t *testing.T) {
	srv := newTestServer(t)
	c := NewHTTPClient(srv.URL, srv.Client(), zerolog.Nop())
	c.SetToken("tok")

	_, err := c.GenerateBatch(context.Background(), models.RecordOrder, 10, GenerateOptions{BatchNumber: 3})

	var execErr *ExecutorError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, http.StatusForbidden, execErr.Status)
	assert.False(t, retryable(err))
}

func TestHTTPClientServerErrorIsTransport(t *testing.T) {
	c := loggedInClient(t, newTestServer(t))

	_, err := c.Counts(context.Background())

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.True(t, retryable(err))
}

func TestHTTPClientImportUpload(t *testing.T) {
	c := loggedInClient(t, newTestServer(t))
	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte("Order ID\n1001\n"), 0o644))

	res, err := c.ImportBatch(context.Background(), ImportRequest{Kind: models.RecordOrder, FilePath: path, BatchSize: 10})
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
	assert.Equal(t, "wc_bulk_import_x", res.ImportSession)
}
