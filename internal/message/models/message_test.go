package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/message/models"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain text", "hello world", false},
		{"trims whitespace", "  padded  ", false},
		{"max length ok", strings.Repeat("a", models.MaxContentLength), false},
		{"too long", strings.Repeat("a", models.MaxContentLength+1), true},
		{"empty", "", true},
		{"whitespace only", "   \n\t  ", true},
		{"script tag", "<script>alert('x')</script>", true},
		{"script tag uppercase", "<SCRIPT>alert('x')</SCRIPT>", true},
		{"script tag with attrs", `<script src="evil.js">payload</script>`, true},
		{"script tag multiline", "<script>\nmulti\nline\n</script>", true},
		{"null byte", "null\x00byte", true},
		{"angle brackets alone", "a < b > c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ValidateContent(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidMessageContent))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.content), got)
		})
	}
}

func TestStateMachine(t *testing.T) {
	newPending := func() *models.Message {
		message, err := models.NewMessage(id.NewSessionID(), id.UserID(1), models.RoleUser, "hi", testNow)
		require.NoError(t, err)
		return message
	}

	t.Run("pending to processing to completed", func(t *testing.T) {
		message := newPending()
		require.NoError(t, message.StartProcessing(testNow))
		assert.Equal(t, models.StatusProcessing, message.Status)
		require.NoError(t, message.Complete(models.Metadata{TokensUsed: 10}, testNow))
		assert.Equal(t, models.StatusCompleted, message.Status)
	})

	t.Run("pending straight to completed", func(t *testing.T) {
		message := newPending()
		require.NoError(t, message.Complete(models.Metadata{}, testNow))
	})

	t.Run("completed cannot restart", func(t *testing.T) {
		message := newPending()
		require.NoError(t, message.Complete(models.Metadata{}, testNow))
		require.Error(t, message.StartProcessing(testNow))
		require.Error(t, message.Complete(models.Metadata{}, testNow))
	})

	t.Run("any state can fail", func(t *testing.T) {
		message := newPending()
		require.NoError(t, message.Complete(models.Metadata{}, testNow))
		message.Fail("late failure", testNow)
		assert.Equal(t, models.StatusError, message.Status)
		assert.Equal(t, 1, message.RetryCount)
	})
}

func TestMetadataValidate(t *testing.T) {
	valid := 0.5
	require.NoError(t, (&models.Metadata{TokensUsed: 10, ProcessingTime: 1.2, Confidence: &valid}).Validate())

	require.Error(t, (&models.Metadata{TokensUsed: -1}).Validate())
	require.Error(t, (&models.Metadata{ProcessingTime: -0.1}).Validate())

	tooHigh := 1.1
	require.Error(t, (&models.Metadata{Confidence: &tooHigh}).Validate())
	negative := -0.1
	require.Error(t, (&models.Metadata{Confidence: &negative}).Validate())
}

func TestEdit(t *testing.T) {
	author := id.UserID(1)
	message, err := models.NewMessage(id.NewSessionID(), author, models.RoleUser, "original", testNow)
	require.NoError(t, err)

	require.Error(t, message.Edit("hijacked", id.UserID(2), testNow))

	require.NoError(t, message.Edit("revised", author, testNow))
	assert.Equal(t, "revised", message.Content)

	require.NoError(t, message.Complete(models.Metadata{}, testNow))
	require.Error(t, message.Edit("too late", author, testNow))

	assistant, err := models.NewMessage(id.NewSessionID(), author, models.RoleAssistant, "answer", testNow)
	require.NoError(t, err)
	require.Error(t, assistant.Edit("no", author, testNow))
}

func TestRetryBudget(t *testing.T) {
	message, err := models.NewMessage(id.NewSessionID(), id.UserID(1), models.RoleUser, "flaky", testNow)
	require.NoError(t, err)

	require.Error(t, message.Retry(testNow))

	for i := 0; i < models.MaxRetries; i++ {
		message.Fail("boom", testNow)
		if i < models.MaxRetries-1 {
			assert.True(t, message.CanRetry())
			require.NoError(t, message.Retry(testNow))
			assert.Equal(t, models.StatusPending, message.Status)
			assert.Empty(t, message.ErrorDetails)
		}
	}

	assert.Equal(t, models.MaxRetries, message.RetryCount)
	assert.False(t, message.CanRetry())
	require.Error(t, message.Retry(testNow))
}

func TestResponseTimeRating(t *testing.T) {
	assert.Equal(t, "excellent", models.ResponseTimeRating(1.9))
	assert.Equal(t, "good", models.ResponseTimeRating(2.0))
	assert.Equal(t, "good", models.ResponseTimeRating(4.9))
	assert.Equal(t, "acceptable", models.ResponseTimeRating(5.0))
	assert.Equal(t, "acceptable", models.ResponseTimeRating(9.9))
	assert.Equal(t, "poor", models.ResponseTimeRating(10.0))
}
