// ABOUTME: Tests for the Twilio transport and TwiML rendering
// ABOUTME: Uses an httptest server standing in for the Twilio API

package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioSend(t *testing.T) {
	var gotPath, gotFrom, gotTo, gotBody string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotFrom = r.FormValue("From")
		gotTo = r.FormValue("To")
		gotBody = r.FormValue("Body")
		gotUser, gotPass, _ = r.BasicAuth()
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM123"})
	}))
	defer srv.Close()

	tw := NewTwilio("AC42", "secret", "+15550001111", WithBaseURL(srv.URL))
	err := tw.Send(context.Background(), "+15551230001", "Your post is ready for review")
	require.NoError(t, err)

	assert.Equal(t, "/Accounts/AC42/Messages.json", gotPath)
	assert.Equal(t, "whatsapp:+15550001111", gotFrom)
	assert.Equal(t, "whatsapp:+15551230001", gotTo)
	assert.Equal(t, "Your post is ready for review", gotBody)
	assert.Equal(t, "AC42", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestTwilioSendKeepsExistingPrefix(t *testing.T) {
	var gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotTo = r.FormValue("To")
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM123"})
	}))
	defer srv.Close()

	tw := NewTwilio("AC42", "secret", "+15550001111", WithBaseURL(srv.URL))
	require.NoError(t, tw.Send(context.Background(), "whatsapp:+15551230001", "hi"))
	assert.Equal(t, "whatsapp:+15551230001", gotTo)
}

func TestTwilioSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid To number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tw := NewTwilio("AC42", "secret", "+15550001111", WithBaseURL(srv.URL))
	err := tw.Send(context.Background(), "not-a-number", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "invalid To number")
}

func TestTwilioSendNotConfigured(t *testing.T) {
	tw := NewTwilio("", "", "")
	err := tw.Send(context.Background(), "+15551230001", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTwiML(t *testing.T) {
	got := TwiML("Post approved. Publishing now.")
	assert.Contains(t, got, "<Response>")
	assert.Contains(t, got, "<Message><Body>Post approved. Publishing now.</Body></Message>")

	// Special characters must be escaped, not break the document.
	got = TwiML(`Draft says "50% off" <today>`)
	assert.Contains(t, got, "&#34;50% off&#34;")
	assert.Contains(t, got, "&lt;today&gt;")
}

func TestTwiMLEmpty(t *testing.T) {
	got := TwiML("")
	assert.Contains(t, got, "<Response></Response>")
	assert.NotContains(t, got, "<Message>")
}

func TestMockRecords(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Send(context.Background(), "+15551230001", "one"))
	require.NoError(t, m.Send(context.Background(), "+15551230002", "two"))

	sent := m.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "+15551230001", sent[0].To)
	assert.Equal(t, "two", sent[1].Body)
}
