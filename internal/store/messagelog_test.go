package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newMessage(id string, sendTime time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		SessionID: "s1",
		Type:      domain.MessageTypeText,
		Content:   "content " + id,
		SendTime:  sendTime,
		Sender:    domain.SenderUser,
	}
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func fillLog(t *testing.T, n int) *MessageLog {
	t.Helper()
	log := NewMessageLog()
	for i := 0; i < n; i++ {
		require.NoError(t, log.Append(newMessage(fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Second))))
	}
	return log
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	log := NewMessageLog()
	require.NoError(t, log.Append(newMessage("m1", base)))

	err := log.Append(newMessage("m1", base.Add(time.Second)))
	assert.ErrorIs(t, err, domain.ErrDuplicateMessageID)
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, base, log.Messages()[0].SendTime)
}

func TestPageSizes(t *testing.T) {
	log := fillLog(t, 25)

	page := log.Page("", 1, 10)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Records, 10)
	assert.Equal(t, 1, page.Current)
	assert.Equal(t, 10, page.PageSize)

	page = log.Page("", 3, 10)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Records, 5)
	assert.Equal(t, []string{"m04", "m03", "m02", "m01", "m00"}, ids(page.Records))
}

func TestPageOutOfRange(t *testing.T) {
	log := fillLog(t, 3)

	page := log.Page("", 5, 10)
	assert.Equal(t, 3, page.Total)
	assert.NotNil(t, page.Records)
	assert.Empty(t, page.Records)

	// (pageNum-1)*pageSize would wrap to 0 here.
	big := fillLog(t, 5).Page("", 1<<62+1, 4)
	assert.Equal(t, 5, big.Total)
	assert.Empty(t, big.Records)

	assert.Empty(t, NewMessageLog().Page("", 1, 10).Records)
}

func TestPageOrdersBySendTimeDescending(t *testing.T) {
	log := NewMessageLog()
	// Arrival order differs from send time order.
	require.NoError(t, log.Append(newMessage("t2", base.Add(2*time.Second))))
	require.NoError(t, log.Append(newMessage("t1", base.Add(1*time.Second))))
	require.NoError(t, log.Append(newMessage("t3", base.Add(3*time.Second))))

	page := log.Page("", 1, 10)
	assert.Equal(t, []string{"t3", "t2", "t1"}, ids(page.Records))
	// The log itself keeps arrival order.
	assert.Equal(t, []string{"t2", "t1", "t3"}, ids(log.Messages()))
}

func TestPageTiesPreferLatestAppended(t *testing.T) {
	log := NewMessageLog()
	require.NoError(t, log.Append(newMessage("a", base)))
	require.NoError(t, log.Append(newMessage("b", base)))
	require.NoError(t, log.Append(newMessage("c", base)))
	require.NoError(t, log.Append(newMessage("old", base.Add(-time.Minute))))

	page := log.Page("", 1, 10)
	assert.Equal(t, []string{"c", "b", "a", "old"}, ids(page.Records))
}

func TestPageStartIDContinuesAfterCursor(t *testing.T) {
	log := fillLog(t, 5) // view: m04 m03 m02 m01 m00

	page := log.Page("m03", 1, 10)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"m02", "m01", "m00"}, ids(page.Records))

	page = log.Page("m00", 1, 10)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Records)
}

func TestPageUnknownStartIDUsesFullView(t *testing.T) {
	log := fillLog(t, 4)

	page := log.Page("missing", 1, 2)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, []string{"m03", "m02"}, ids(page.Records))
}

func TestPageReturnsCopies(t *testing.T) {
	log := fillLog(t, 1)

	page := log.Page("", 1, 10)
	page.Records[0].Content = "mutated"
	assert.Equal(t, "content m00", log.Messages()[0].Content)
}
