package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRegistryLookup(t *testing.T) {
	t.Run("Found By Staff Number", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/personnel/lookup", r.URL.Path)
			assert.Equal(t, "KQ001234", r.URL.Query().Get("staff_number"))
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"found": true,
				"record": {
					"staff_number": "KQ001234",
					"full_name": "John Doe",
					"department": "Flight Operations",
					"exit_date": "2019-06-30T00:00:00Z"
				}
			}`))
		}))
		defer server.Close()

		client := NewHTTPRegistry(Config{BaseURL: server.URL, APIKey: "test-key"})

		record, err := client.Lookup(context.Background(), Query{StaffNumber: "KQ001234"})
		require.NoError(t, err)
		assert.Equal(t, "John Doe", record.FullName)
		assert.Equal(t, "Flight Operations", record.Department)
		assert.Equal(t, 2019, record.ExitDate.Year())
	})

	t.Run("Staff Number Preferred Over National ID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "KQ001234", r.URL.Query().Get("staff_number"))
			assert.Empty(t, r.URL.Query().Get("national_id"))
			w.Write([]byte(`{"found": true, "record": {"full_name": "John Doe"}}`))
		}))
		defer server.Close()

		client := NewHTTPRegistry(Config{BaseURL: server.URL})

		_, err := client.Lookup(context.Background(), Query{StaffNumber: "KQ001234", IDOrPassport: "A1234567"})
		require.NoError(t, err)
	})

	t.Run("404 Means Not Found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewHTTPRegistry(Config{BaseURL: server.URL})

		record, err := client.Lookup(context.Background(), Query{IDOrPassport: "A1234567"})
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Found False Means Not Found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"found": false}`))
		}))
		defer server.Close()

		client := NewHTTPRegistry(Config{BaseURL: server.URL})

		record, err := client.Lookup(context.Background(), Query{StaffNumber: "KQ999999"})
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Server Error Means Unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewHTTPRegistry(Config{BaseURL: server.URL})

		record, err := client.Lookup(context.Background(), Query{StaffNumber: "KQ001234"})
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Connection Failure Means Unavailable", func(t *testing.T) {
		client := NewHTTPRegistry(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

		record, err := client.Lookup(context.Background(), Query{StaffNumber: "KQ001234"})
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Timeout Means Unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		client := NewHTTPRegistry(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})

		record, err := client.Lookup(context.Background(), Query{StaffNumber: "KQ001234"})
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Empty Query Rejected", func(t *testing.T) {
		client := NewHTTPRegistry(Config{BaseURL: "http://example.com"})

		record, err := client.Lookup(context.Background(), Query{})
		assert.Nil(t, record)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	})
}
